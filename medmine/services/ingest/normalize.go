package ingest

import (
	"strconv"
	"strings"
	"unicode"

	"medmine/medmine/utils/types"
)

// NormalizeColumns turns raw header cells into unique snake_case keys.
// Blank headers become column_<n> (1-based position). Repeats get _2, _3
// suffixes. The row id key is reserved and never produced.
func NormalizeColumns(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]bool{types.RowIDField: true}
	for i, h := range header {
		base := normalize(h)
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; seen[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

func normalize(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
