// Package lang validates the languages a recording may be classified in.
package lang

import (
	"fmt"
	"slices"
	"strings"
)

// supported maps ISO 639-1 codes to display names. Each entry has a speech
// recognition model and a linguistic feature pipeline behind it.
var supported = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"zh": "Chinese",
}

// Normalize lowercases a code and uses "-" as separator: "pt_BR" -> "pt-br".
func Normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(lang, "_", "-")))
}

// BaseCode extracts the base code from a locale: "zh-CN" -> "zh".
func BaseCode(lang string) string {
	normalized := Normalize(lang)
	if base, _, ok := strings.Cut(normalized, "-"); ok {
		return base
	}
	return normalized
}

// Validate returns the base code for lang, or an error wrapping
// ErrUnsupported. There is no auto-detect: an empty language is rejected.
func Validate(lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		return "", fmt.Errorf("language is required (one of %s): %w",
			strings.Join(Supported(), ", "), ErrUnsupported)
	}
	base := BaseCode(lang)
	if _, ok := supported[base]; !ok {
		return "", fmt.Errorf("language %q (supported: %s): %w",
			lang, strings.Join(Supported(), ", "), ErrUnsupported)
	}
	return base, nil
}

// Supported returns the supported base codes, sorted.
func Supported() []string {
	codes := make([]string, 0, len(supported))
	for code := range supported {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// DisplayName returns the language name for a code, or the code itself.
func DisplayName(lang string) string {
	if name, ok := supported[BaseCode(lang)]; ok {
		return name
	}
	return lang
}
