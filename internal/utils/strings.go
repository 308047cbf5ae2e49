package utils

import "strings"

// ParseSymbols splits a comma-separated symbol list, upper-casing and trimming each
// entry. Blank entries and repeats are dropped; first occurrence order is kept.
// Returns nil when nothing remains.
func ParseSymbols(s string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, v := range strings.Split(s, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(v))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		result = append(result, symbol)
	}
	return result
}
