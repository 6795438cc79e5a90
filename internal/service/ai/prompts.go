package ai

import "unicode/utf8"

// System instructions injected into a session's history.
const (
	ChainOfThoughtInstruction = "Use Chain of Thought reasoning. Think step by step before answering. Explain each step of your reasoning clearly."
	BulletInstruction         = "Format the answer as a bullet list of key points."
	ParagraphInstruction      = "Format the answer as a single concise paragraph."

	documentPrefix = "The user uploaded the following document:\n"
	searchPrefix   = "Relevant web search results:\n"

	// DocumentExcerptRunes bounds how much of a pending document is injected.
	DocumentExcerptRunes = 1500
)

const chartExtractionPrompt = "You are a data analyst assistant. From the provided text, extract any chart-worthy data.\n" +
	"Return it as a JSON object with 'type', 'labels', and 'values'.\n" +
	"Example: {\"type\": \"bar\", \"labels\": [\"A\", \"B\"], \"values\": [10, 20]}.\n" +
	"Only include numeric data. If nothing useful, return null."

const reflectionPrompt = "You review answers written by a research assistant. " +
	"Critique the draft answer to the question for errors, gaps and unclear wording, " +
	"then reply with the final answer only. If the draft needs no change, repeat it exactly."

const reflectionInput = "Question:\n{question}\n\nDraft answer:\n{draft}"

// FormatInstruction maps a format hint to its instruction.
func FormatInstruction(format string) (string, bool) {
	switch format {
	case "bullet":
		return BulletInstruction, true
	case "paragraph":
		return ParagraphInstruction, true
	default:
		return "", false
	}
}

// DocumentContext renders the system message carrying a document excerpt.
func DocumentContext(text string) string {
	return documentPrefix + truncateRunes(text, DocumentExcerptRunes)
}

// SearchContext renders the system message carrying search results.
func SearchContext(summary string) string {
	return searchPrefix + summary
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
