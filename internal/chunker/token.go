package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenEstimator approximates model token counts without a tokenizer.
type TokenEstimator struct {
	CharsPerToken float64 // For CJK text, where words are not space separated.
}

// EstimateTokens gives a rough token count: CJK runes are divided by
// CharsPerToken and the remaining text is counted at ~1.33 tokens per word.
func (e TokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = 0.7
	}

	cjk := 0
	var rest strings.Builder
	for _, r := range text {
		if isCJK(r) {
			cjk++
			rest.WriteRune(' ')
			continue
		}
		rest.WriteRune(r)
	}
	words := len(strings.Fields(rest.String()))

	tokens := int(float64(cjk)/cpt + float64(words)*1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateTokens uses the default estimator.
func EstimateTokens(text string) int {
	return TokenEstimator{}.EstimateTokens(text)
}

// Truncate shortens text whose estimated size exceeds maxTokens. It keeps a
// head slice and a tail slice sized by the ratios, joined by an elision line.
func (e TokenEstimator) Truncate(text string, maxTokens int, headRatio, tailRatio float64) string {
	if maxTokens <= 0 {
		return text
	}
	tokens := e.EstimateTokens(text)
	if tokens <= maxTokens {
		return text
	}

	runes := []rune(text)
	keep := int(float64(len(runes)) * float64(maxTokens) / float64(tokens))
	head := int(float64(keep) * headRatio)
	tail := int(float64(keep) * tailRatio)
	if head+tail >= len(runes) {
		return text
	}
	return string(runes[:head]) + "\n\n...\n\n" + string(runes[len(runes)-tail:])
}

func isCJK(r rune) bool {
	return r >= utf8.RuneSelf && (unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r))
}
