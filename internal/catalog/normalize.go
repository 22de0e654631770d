package catalog

import (
	"strings"
	"unicode"
)

// minBarcodeLength guards leading-zero stripping so short codes like "0042"
// keep enough digits to stay meaningful.
const minBarcodeLength = 6

// NormalizeBarcode folds the raw barcode variants stores hand us into one
// canonical grouping key. Returns "" when nothing usable remains, which
// leaves the variant outside any group.
func NormalizeBarcode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	code := b.String()

	for len(code) > minBarcodeLength && code[0] == '0' {
		code = code[1:]
	}
	return code
}
