package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/bregydoc/gtranslate"
)

// googleChunkSize bounds a single gtranslate call. Runes, not bytes, so
// CJK input is not cut mid-character.
const googleChunkSize = 2000

// GoogleTranslator is the keyless fallback provider. It has no prompt
// control, so the glossary and register rules do not apply — suitable for
// development and smoke runs, not production output.
type GoogleTranslator struct {
	From string
	To   string
}

func NewGoogleTranslator() *GoogleTranslator {
	return &GoogleTranslator{From: "zh", To: "en"}
}

func (g *GoogleTranslator) Translate(ctx context.Context, req Request) (string, error) {
	return g.translateText(ctx, req.Text)
}

func (g *GoogleTranslator) TranslateTitle(ctx context.Context, title string) (string, error) {
	return g.translateText(ctx, title)
}

func (g *GoogleTranslator) TranslateSynopsis(ctx context.Context, synopsis string) (string, error) {
	return g.translateText(ctx, synopsis)
}

func (g *GoogleTranslator) translateText(ctx context.Context, text string) (string, error) {
	var result strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); i += googleChunkSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		end := i + googleChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		translated, err := gtranslate.TranslateWithParams(
			string(runes[i:end]),
			gtranslate.TranslationParams{From: g.From, To: g.To},
		)
		if err != nil {
			return "", fmt.Errorf("translating chunk: %w", err)
		}
		result.WriteString(translated)
	}

	return result.String(), nil
}
