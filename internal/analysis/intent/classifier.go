// Package intent classifies a raw chat message into the command it asks for.
package intent

import (
	"strings"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
)

// Intent is the branch a chat request is routed to.
type Intent string

const (
	Chat           Intent = "chat"
	Note           Intent = "note"
	ShowNotes      Intent = "show_notes"
	ClearNotes     Intent = "clear_notes"
	Citation       Intent = "citation"
	ShowCitations  Intent = "show_citations"
	ClearCitations Intent = "clear_citations"
	Chart          Intent = "chart"
	Export         Intent = "export"
)

// Export formats.
const (
	FormatTXT = "txt"
	FormatPDF = "pdf"
)

// Decision is the outcome of Classify. ChartType and ExportFormat are only
// set for the matching intents.
type Decision struct {
	Intent       Intent
	ChartType    chart.Type
	ExportFormat string
}

type rule struct {
	intent  Intent
	phrases []string
}

// phraseRules are evaluated in order; the first rule with a matching phrase wins.
var phraseRules = []rule{
	{intent: Note, phrases: []string{"take note", "remember this"}},
	{intent: ShowNotes, phrases: []string{"show notes", "my notes"}},
	{intent: ClearNotes, phrases: []string{"delete notes", "clear notes"}},
	{intent: Citation, phrases: []string{"cite this", "add citation"}},
	{intent: ShowCitations, phrases: []string{"show citations", "my citations"}},
	{intent: ClearCitations, phrases: []string{"delete citations", "clear citations"}},
}

// Classify routes a message and its optional format hint. Note and citation
// phrases take precedence over a chart hint, which takes precedence over an
// export request; everything else is a chat turn.
func Classify(message, format string) Decision {
	normalized := strings.ToLower(message)

	for _, r := range phraseRules {
		if containsAny(normalized, r.phrases) {
			return Decision{Intent: r.intent}
		}
	}

	if kind, ok := chart.ParseType(format); ok {
		return Decision{Intent: Chart, ChartType: kind}
	}

	if strings.Contains(normalized, "export") {
		switch {
		case strings.Contains(normalized, "pdf"):
			return Decision{Intent: Export, ExportFormat: FormatPDF}
		case strings.Contains(normalized, "txt"), strings.Contains(normalized, "text"):
			return Decision{Intent: Export, ExportFormat: FormatTXT}
		}
	}

	return Decision{Intent: Chat}
}

// NoteText extracts the note body: everything after the first "note" token,
// or after the trigger phrase when the message has no such token.
func NoteText(message string) string {
	rest := message
	if idx := indexFold(message, "note"); idx >= 0 {
		rest = message[idx+len("note"):]
	} else if idx := indexFold(message, "remember this"); idx >= 0 {
		rest = message[idx+len("remember this"):]
	}

	rest = strings.TrimSpace(rest)
	rest = strings.TrimLeft(rest, ":-")
	return strings.TrimSpace(rest)
}

// indexFold is a case-insensitive strings.Index for ASCII needles. It works on
// the original bytes so the offset stays valid for slicing message.
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

var chainOfThoughtTriggers = []string{
	"step by step",
	"think step by step",
	"explain step by step",
	"reason through",
}

// WantsChainOfThought reports whether the message asks for explicit reasoning.
func WantsChainOfThought(message string) bool {
	return containsAny(strings.ToLower(message), chainOfThoughtTriggers)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
