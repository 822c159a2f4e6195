package util

import (
	"golang.org/x/text/unicode/norm"
)

// Normalize returns s in Unicode normalisation form C so that canonically
// equivalent subject values serialise to the same bytes.
func Normalize(s string) string {
	return norm.NFC.String(s)
}
