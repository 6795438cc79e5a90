package chart

import "strings"

// Type is a chart kind the renderer can draw.
type Type string

const (
	Bar       Type = "bar"
	Line      Type = "line"
	Pie       Type = "pie"
	Histogram Type = "histogram"
)

// ParseType normalizes a user-facing chart name. "hist" is accepted as an
// alias of histogram; anything outside the supported set is rejected.
func ParseType(raw string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bar":
		return Bar, true
	case "line":
		return Line, true
	case "pie":
		return Pie, true
	case "hist", "histogram":
		return Histogram, true
	default:
		return "", false
	}
}

// Data is a validated, renderable series.
type Data struct {
	Type   Type      `json:"type"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Title  string    `json:"title,omitempty"`
}
