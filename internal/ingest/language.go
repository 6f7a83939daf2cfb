package ingest

import "strings"

// commonEnglishWords are frequent function words whose presence is a cheap,
// best-effort signal of English text. There is no "undetected" outcome: a
// body containing none of them counts as non-English, so the upload path's
// English-only filter skips it. Ingestion never sets the language field.
var commonEnglishWords = []string{
	" the ", " and ", " is ", " was ", " for ", " with ", " this ", " that ",
	" you ", " have ", " not ", " but ", " are ", " it ", " to ", " of ",
}

// detectEnglish reports whether body looks like English text: true as soon
// as any one of commonEnglishWords appears. Not a language model, just
// enough signal to gate the upload path's optional English-only filter.
func detectEnglish(body string) bool {
	padded := " " + strings.ToLower(body) + " "
	for _, word := range commonEnglishWords {
		if strings.Contains(padded, word) {
			return true
		}
	}
	return false
}
