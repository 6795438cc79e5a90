package chart

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"

	model "github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
)

const (
	defaultTitle  = "Generated Chart"
	width         = 800
	height        = 500
	histogramBins = 5
)

// ErrRender wraps renderer failures.
var ErrRender = errors.New("chart rendering failed")

// Renderer draws validated data as PNG and returns it as a data URL.
type Renderer struct{}

// NewRenderer creates a PNG renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render draws data and returns "data:image/png;base64,...".
func (r *Renderer) Render(data model.Data) (string, error) {
	title := data.Title
	if title == "" {
		title = defaultTitle
	}

	var buf bytes.Buffer
	var err error
	switch data.Type {
	case model.Bar:
		err = barChart(title, data.Labels, data.Values).Render(gochart.PNG, &buf)
	case model.Pie:
		err = pieChart(title, data.Labels, data.Values).Render(gochart.PNG, &buf)
	case model.Line:
		err = lineChart(title, data.Labels, data.Values).Render(gochart.PNG, &buf)
	case model.Histogram:
		labels, counts := histogram(data.Values, histogramBins)
		err = barChart(title, labels, counts).Render(gochart.PNG, &buf)
	default:
		return "", fmt.Errorf("%w: unsupported type %q", ErrRender, data.Type)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func barChart(title string, labels []string, values []float64) gochart.BarChart {
	bars := make([]gochart.Value, len(values))
	for i, v := range values {
		bars[i] = gochart.Value{Label: labels[i], Value: v}
	}
	return gochart.BarChart{
		Title:    title,
		Width:    width,
		Height:   height,
		BarWidth: 40,
		Bars:     bars,
		YAxis:    gochart.YAxis{Range: valueRange(values)},
	}
}

func pieChart(title string, labels []string, values []float64) gochart.PieChart {
	slices := make([]gochart.Value, len(values))
	for i, v := range values {
		slices[i] = gochart.Value{Label: labels[i], Value: v}
	}
	return gochart.PieChart{
		Title:  title,
		Width:  width,
		Height: height,
		Values: slices,
	}
}

func lineChart(title string, labels []string, values []float64) gochart.Chart {
	xs := make([]float64, len(values))
	ticks := make([]gochart.Tick, len(values))
	for i := range values {
		xs[i] = float64(i)
		ticks[i] = gochart.Tick{Value: float64(i), Label: labels[i]}
	}
	return gochart.Chart{
		Title:  title,
		Width:  width,
		Height: height,
		XAxis: gochart.XAxis{
			Ticks: ticks,
			Range: &gochart.ContinuousRange{Min: 0, Max: math.Max(float64(len(values)-1), 1)},
		},
		YAxis: gochart.YAxis{Range: valueRange(values)},
		Series: []gochart.Series{
			gochart.ContinuousSeries{
				Name:    title,
				XValues: xs,
				YValues: values,
			},
		},
	}
}

// valueRange always includes zero and never collapses to a single point,
// which go-chart refuses to draw.
func valueRange(values []float64) *gochart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return &gochart.ContinuousRange{Min: lo, Max: math.Max(hi, lo+1)}
}

// histogram buckets values into at most bins equal-width ranges.
func histogram(values []float64, bins int) ([]string, []float64) {
	if len(values) == 0 {
		return nil, nil
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return []string{fmt.Sprintf("%g", lo)}, []float64{float64(len(values))}
	}

	step := (hi - lo) / float64(bins)
	counts := make([]float64, bins)
	for _, v := range values {
		idx := int((v - lo) / step)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.4g-%.4g", lo+step*float64(i), lo+step*float64(i+1))
	}
	return labels, counts
}
