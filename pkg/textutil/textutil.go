// Package textutil normalizes the board portal's ALL-CAPS text fields.
package textutil

import (
	"strings"
	"unicode"
)

// Prepositions and articles kept lowercase in Brazilian-Portuguese title
// casing, except at the start of the text.
var lowercaseWords = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "dos": {}, "das": {},
	"e": {}, "em": {}, "na": {}, "no": {}, "nas": {}, "nos": {},
	"para": {}, "por": {}, "com": {}, "sem": {}, "sob": {},
	"ao": {}, "aos": {}, "à": {}, "às": {},
}

// TitleCase converts text to title case respecting pt-BR prepositions.
// A '/' is treated as a word separator with each segment capitalized:
//
//	TitleCase("UNIVERSIDADE FEDERAL DO PARANA") == "Universidade Federal do Parana"
//	TitleCase("CANCEROLOGIA/CANCEROLOGIA PEDIÁTRICA") == "Cancerologia/Cancerologia Pediátrica"
func TitleCase(text string) string {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) == 0 {
		return text
	}
	for i, w := range words {
		words[i] = capitalizeWord(w, i == 0)
	}
	return strings.Join(words, " ")
}

func capitalizeWord(word string, first bool) string {
	if strings.Contains(word, "/") {
		parts := strings.Split(word, "/")
		for j, p := range parts {
			parts[j] = capitalizeWord(p, first && j == 0)
		}
		return strings.Join(parts, "/")
	}

	lower := strings.ToLower(word)
	if !first {
		if _, keep := lowercaseWords[lower]; keep {
			return lower
		}
	}
	return capitalize(lower)
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
