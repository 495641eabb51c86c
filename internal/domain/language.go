package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LanguageCommandPrefix marks a text message as a language directive.
const LanguageCommandPrefix = "language:"

// languageNames maps the names users type to BCP-47 codes.
var languageNames = map[string]string{
	"english": "en-US",
	"hebrew":  "he-IL",
}

// SupportedLanguages is the allow-list of transcription languages.
var SupportedLanguages = []string{"en-US", "he-IL"}

// ParseLanguageCommand reports whether body is a language command and returns
// the requested language name, trimmed and lower-cased.
func ParseLanguageCommand(body string) (string, bool) {
	if len(body) < len(LanguageCommandPrefix) {
		return "", false
	}
	if !strings.EqualFold(body[:len(LanguageCommandPrefix)], LanguageCommandPrefix) {
		return "", false
	}
	name := strings.TrimSpace(body[len(LanguageCommandPrefix):])
	return cases.Lower(language.Und).String(name), true
}

// LookupLanguage resolves a language name ("english") to its code ("en-US").
func LookupLanguage(name string) (string, bool) {
	code, ok := languageNames[name]
	return code, ok
}

// IsLanguageSupported checks code against SupportedLanguages.
func IsLanguageSupported(code string) bool {
	for _, c := range SupportedLanguages {
		if c == code {
			return true
		}
	}
	return false
}

// LanguageBase returns the ISO-639-1 part of a BCP-47 code ("he-IL" -> "he").
// Unparseable codes are returned unchanged.
func LanguageBase(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, _ := tag.Base()
	return base.String()
}

// LanguageDisplayName returns the user-facing name for a supported code.
func LanguageDisplayName(code string) string {
	for name, c := range languageNames {
		if c == code {
			return cases.Title(language.English).String(name)
		}
	}
	return code
}
