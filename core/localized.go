package core

import "strings"

// Language codes supported by the platform.
const (
	LangTR = "tr"
	LangEN = "en"
)

// Localized holds a text in both supported languages.
type Localized struct {
	TR string `json:"tr"`
	EN string `json:"en"`
}

// Get returns the text for lang, falling back to the other language when the
// requested one is empty. Unknown codes resolve as Turkish.
func (l Localized) Get(lang string) string {
	primary, secondary := l.TR, l.EN
	if NormalizeLang(lang) == LangEN {
		primary, secondary = l.EN, l.TR
	}
	if primary != "" {
		return primary
	}
	return secondary
}

// IsZero reports whether both languages are empty.
func (l Localized) IsZero() bool { return l.TR == "" && l.EN == "" }

// NormalizeLang maps a language tag (e.g. "en-US") to LangTR or LangEN.
func NormalizeLang(lang string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), LangEN) {
		return LangEN
	}
	return LangTR
}
