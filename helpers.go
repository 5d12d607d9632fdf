package bridge

import "strconv"

// jsQuote escapes a string for safe embedding in JavaScript source.
// Go %q quoting produces a string literal that is also valid JS.
func jsQuote(s string) string {
	return strconv.Quote(s)
}
