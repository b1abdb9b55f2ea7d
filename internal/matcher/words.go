package matcher

import "strings"

// DescriptionWords splits a transaction description into the words used for
// near-duplicate matching.
func DescriptionWords(description string) []string {
	return strings.Fields(description)
}

// MatchWords reports whether every word occurs inside text. Each word
// consumes the first occurrence of itself from a working copy of text, in
// order and without backtracking, so a repeated word needs a repeated
// occurrence. Matching is on substrings, not tokens: "art" matches inside
// "smart". An empty word list always matches.
func MatchWords(words []string, text string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
		text = strings.Replace(text, w, "", 1)
	}
	return true
}
