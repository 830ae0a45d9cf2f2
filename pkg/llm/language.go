package llm

import (
	"unicode"
)

// Language is a detected prompt language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// DetectLanguage classifies s as Arabic or English by character-class
// ratio: more than 30% of non-space codepoints in the Arabic blocks means
// Arabic. Empty input is English.
func DetectLanguage(s string) Language {
	var total, arabic int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isArabic(r) {
			arabic++
		}
	}
	if total > 0 && float64(arabic)/float64(total) > 0.3 {
		return LanguageArabic
	}
	return LanguageEnglish
}

func isArabic(r rune) bool {
	switch {
	case r >= 0x0600 && r <= 0x06FF: // Arabic
		return true
	case r >= 0x0750 && r <= 0x077F: // Arabic Supplement
		return true
	case r >= 0x08A0 && r <= 0x08FF: // Arabic Extended-A
		return true
	case r >= 0xFB50 && r <= 0xFDFF: // Presentation Forms-A
		return true
	case r >= 0xFE70 && r <= 0xFEFF: // Presentation Forms-B
		return true
	}
	return false
}
