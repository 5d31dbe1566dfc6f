package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zombor/invoice-extract/internal/invoice"
)

var dollarAmount = regexp.MustCompile(`\$\s*([\d,]*\.?\d+)`)

// TotalFromTables sums the dollar amounts under the first "Total" header
// cell of the first table that has one. Rows shorter than the header are
// skipped. It reports false when no such column holds an amount.
func TotalFromTables(tables []invoice.Table) (string, bool) {
	for _, t := range tables {
		if len(t) < 2 {
			continue
		}
		col := -1
		for i, h := range t[0] {
			if strings.EqualFold(strings.TrimSpace(h), "total") {
				col = i
				break
			}
		}
		if col < 0 {
			continue
		}

		var (
			cents int64
			seen  bool
		)
		for _, row := range t[1:] {
			if col >= len(row) {
				continue
			}
			m := dollarAmount.FindStringSubmatch(row[col])
			if m == nil {
				continue
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			if err != nil {
				continue
			}
			cents += int64(v*100 + 0.5)
			seen = true
		}
		if seen {
			return formatCents(cents), true
		}
	}
	return "", false
}

// formatCents renders cents as 1,204.50
func formatCents(cents int64) string {
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	frac := cents % 100
	b.WriteByte('.')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}
