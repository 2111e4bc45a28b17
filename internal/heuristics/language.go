// Package heuristics derives cheap, deterministic hints from a user message.
// The hints only shape the instruction sent to the model; nothing here
// decides which tool runs.
package heuristics

import (
	"strings"
	"unicode"
)

// Supported language codes.
const (
	English = "en"
	Urdu    = "ur"
)

// Language is the resolved reply language plus the alternate the model may
// mirror when the user mixes scripts.
type Language struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

var arabicScript = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0600, Hi: 0x06FF, Stride: 1},
		{Lo: 0x0750, Hi: 0x077F, Stride: 1},
		{Lo: 0x08A0, Hi: 0x08FF, Stride: 1},
	},
}

// ResolveLanguage honors an explicit supported code, otherwise picks Urdu
// when the message contains Arabic-script characters and English when it
// does not.
func ResolveLanguage(preferred, message string) Language {
	switch code := strings.ToLower(strings.TrimSpace(preferred)); code {
	case English, Urdu:
		return pair(code)
	}
	if hasArabicScript(message) {
		return pair(Urdu)
	}
	return pair(English)
}

func pair(primary string) Language {
	if primary == Urdu {
		return Language{Primary: Urdu, Secondary: English}
	}
	return Language{Primary: English, Secondary: Urdu}
}

func hasArabicScript(s string) bool {
	for _, r := range s {
		if unicode.Is(arabicScript, r) {
			return true
		}
	}
	return false
}
