package rowdata

import (
	"fmt"
	"strings"
)

// Normalize converts an arbitrary cell value into the canonical string
// written into a form field: nil becomes the empty string, surrounding
// whitespace is trimmed, and a trailing ".0" is dropped so spreadsheet
// floats like 12.0 collapse to their integer display.
//
// Normalize is total and idempotent; it never fails.
func Normalize(value any) string {
	if value == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", value))
	// Stripping until the suffix is gone keeps the function idempotent.
	for strings.HasSuffix(s, ".0") {
		s = s[:len(s)-2]
	}
	return s
}
