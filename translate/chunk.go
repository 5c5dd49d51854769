package translate

import "strings"

// Chunk splits text into pieces no longer than limit characters, cutting
// only at blank-line paragraph boundaries. Paragraphs accumulate greedily
// into the current chunk; a paragraph that would overflow it starts the
// next one. A single paragraph longer than the limit becomes its own
// chunk rather than being split mid-sentence, so chunk sizes are
// approximate, not exact.
func Chunk(text string, limit int) []string {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder

	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len("\n\n")+len(p) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// Reassemble joins translated chunks in original order with the canonical
// paragraph separator. Order must never change: later chunks may lean on
// terminology established in earlier ones.
func Reassemble(chunks []string) string {
	trimmed := make([]string, 0, len(chunks))
	for _, c := range chunks {
		trimmed = append(trimmed, strings.TrimSpace(c))
	}
	return strings.Join(trimmed, "\n\n")
}

func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}
