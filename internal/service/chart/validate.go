// Package chart validates model-extracted chart data and renders it.
package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	model "github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
)

var (
	// ErrNoChartData means the extracted payload was absent or malformed.
	ErrNoChartData = errors.New("no chart data could be extracted")
	// ErrExtraction means the extraction call itself failed.
	ErrExtraction = errors.New("chart data extraction failed")
)

type rawData struct {
	Type   json.RawMessage `json:"type"`
	Labels json.RawMessage `json:"labels"`
	Values json.RawMessage `json:"values"`
	Title  json.RawMessage `json:"title"`
}

// Parse locates the JSON object inside a model reply and validates it. Every
// violation is reported as ErrNoChartData wrapped with the reason; Parse
// never panics on malformed input.
func Parse(content string) (model.Data, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return model.Data{}, fmt.Errorf("%w: reply holds no json object", ErrNoChartData)
	}
	return Validate([]byte(trimmed[start : end+1]))
}

// Validate checks a single JSON object of the form
// {"type": ..., "labels": [...], "values": [...]}.
func Validate(payload []byte) (model.Data, error) {
	var raw rawData
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.Data{}, fmt.Errorf("%w: %v", ErrNoChartData, err)
	}

	var typeName string
	if err := json.Unmarshal(raw.Type, &typeName); err != nil {
		return model.Data{}, fmt.Errorf("%w: type must be a string", ErrNoChartData)
	}
	kind, ok := model.ParseType(typeName)
	if !ok {
		return model.Data{}, fmt.Errorf("%w: unsupported type %q", ErrNoChartData, typeName)
	}

	var labels []any
	if err := json.Unmarshal(raw.Labels, &labels); err != nil || len(labels) == 0 {
		return model.Data{}, fmt.Errorf("%w: labels must be a non-empty list", ErrNoChartData)
	}
	outLabels := make([]string, 0, len(labels))
	for i, l := range labels {
		s, ok := l.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return model.Data{}, fmt.Errorf("%w: label %d is not a non-empty string", ErrNoChartData, i)
		}
		outLabels = append(outLabels, s)
	}

	var values []any
	if err := json.Unmarshal(raw.Values, &values); err != nil || values == nil {
		return model.Data{}, fmt.Errorf("%w: values must be a list", ErrNoChartData)
	}
	outValues := make([]float64, 0, len(values))
	for i, v := range values {
		f, ok := v.(float64)
		if !ok {
			return model.Data{}, fmt.Errorf("%w: value %d is not numeric", ErrNoChartData, i)
		}
		outValues = append(outValues, f)
	}

	if len(outLabels) != len(outValues) {
		return model.Data{}, fmt.Errorf("%w: %d labels but %d values", ErrNoChartData, len(outLabels), len(outValues))
	}

	var title string
	if len(raw.Title) > 0 {
		_ = json.Unmarshal(raw.Title, &title)
	}

	return model.Data{Type: kind, Labels: outLabels, Values: outValues, Title: title}, nil
}
