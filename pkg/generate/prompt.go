package generate

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const defaultSystemPrompt = "You are an exam preparation tutor. Explain concepts clearly and accurately, " +
	"use short worked examples where they help, and point out common exam mistakes."

// SystemPrompt returns the tutor instructions for a reply in lang. An empty
// base uses the built-in tutor prompt.
func SystemPrompt(base, lang string) string {
	if strings.TrimSpace(base) == "" {
		base = defaultSystemPrompt
	}
	name := LanguageName(lang)
	if name == "" {
		return base
	}
	return base + " Always answer in " + name + "."
}

// LanguageName maps an ISO language code such as "hi" to its English name.
// Unparseable codes are returned unchanged.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}
