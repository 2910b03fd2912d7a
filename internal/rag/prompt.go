package rag

import "strings"

// BuildPrompt renders the generation prompt: the chunk texts in retrieval
// order under a Context heading, then the query, then the answer cue.
func BuildPrompt(chunks []string, query string) string {
	var buf strings.Builder

	buf.WriteString("Context:\n")
	buf.WriteString(strings.Join(chunks, "\n"))
	buf.WriteString("\n\nQuery:\n")
	buf.WriteString(query)
	buf.WriteString("\n\nAnswer:")

	return buf.String()
}
