package fonts

import (
	"unicode"

	"github.com/go-text/typesetting/language"
)

// DominantScript returns the script covering most letters of text, or
// language.Unknown when text has no letters in a recognised script.
func DominantScript(text string) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	best := language.Unknown
	for _, r := range text {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			best = script
		}
	}
	return best
}

// ScriptName is a lowercase English name for the scripts DominantScript reports.
func ScriptName(s language.Script) string {
	if name, ok := scriptNames[s]; ok {
		return name
	}
	return "unknown"
}

var scriptNames = map[language.Script]string{
	language.Arabic:     "arabic",
	language.Hebrew:     "hebrew",
	language.Latin:      "latin",
	language.Cyrillic:   "cyrillic",
	language.Greek:      "greek",
	language.Thai:       "thai",
	language.Devanagari: "devanagari",
	language.Bengali:    "bengali",
	language.Tamil:      "tamil",
	language.Han:        "han",
	language.Hiragana:   "hiragana",
	language.Katakana:   "katakana",
	language.Hangul:     "hangul",
}

// LanguageMatchesScript reports whether a primary language subtag is usually
// written in script. Unknown pairs are assumed to match.
func LanguageMatchesScript(primary string, s language.Script) bool {
	want, ok := languageScripts[primary]
	if !ok || s == language.Unknown {
		return true
	}
	for _, w := range want {
		if w == s {
			return true
		}
	}
	return false
}

var languageScripts = map[string][]language.Script{
	"en": {language.Latin}, "fr": {language.Latin}, "de": {language.Latin},
	"es": {language.Latin}, "it": {language.Latin}, "pt": {language.Latin},
	"nl": {language.Latin}, "pl": {language.Latin},
	"ru": {language.Cyrillic}, "uk": {language.Cyrillic},
	"el": {language.Greek}, "ar": {language.Arabic}, "he": {language.Hebrew},
	"hi": {language.Devanagari}, "th": {language.Thai},
	"zh": {language.Han},
	"ja": {language.Han, language.Hiragana, language.Katakana},
	"ko": {language.Hangul, language.Han},
}

func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	case unicode.Is(unicode.Cyrillic, r):
		return language.Cyrillic
	case unicode.Is(unicode.Greek, r):
		return language.Greek
	case unicode.Is(unicode.Thai, r):
		return language.Thai
	case unicode.Is(unicode.Devanagari, r):
		return language.Devanagari
	case unicode.Is(unicode.Bengali, r):
		return language.Bengali
	case unicode.Is(unicode.Tamil, r):
		return language.Tamil
	case unicode.Is(unicode.Han, r):
		return language.Han
	case unicode.Is(unicode.Hiragana, r):
		return language.Hiragana
	case unicode.Is(unicode.Katakana, r):
		return language.Katakana
	case unicode.Is(unicode.Hangul, r):
		return language.Hangul
	}
	return language.Unknown
}
