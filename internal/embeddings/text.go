package embeddings

import (
	"strings"
	"unicode"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

// BlockText generates the searchable text of a block definition: its name,
// the words of a CamelCase name, its type tag and its parameter names.
func BlockText(def catalog.BlockDefinition) string {
	parts := []string{def.Name}
	if words := splitWords(def.Name); len(words) > 1 {
		parts = append(parts, strings.Join(words, " "))
	}
	if def.Type != "" {
		parts = append(parts, def.Type)
	}
	if names := def.Parameters.Names(); len(names) > 0 {
		parts = append(parts, strings.Join(names, " "))
	}
	return strings.Join(parts, " ")
}

// splitWords breaks an identifier at case and letter/digit boundaries:
// "TransformerEncoder" gives [Transformer Encoder], "Conv2d" gives [Conv 2d].
func splitWords(name string) []string {
	var (
		words []string
		cur   []rune
	)
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && len(cur) > 0 {
			prev := runes[i-1]
			upper := unicode.IsUpper(r) && !unicode.IsUpper(prev)
			digit := unicode.IsDigit(r) && !unicode.IsDigit(prev)
			if upper || digit {
				words = append(words, string(cur))
				cur = nil
			}
		}
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}
