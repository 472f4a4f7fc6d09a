package postgres

import (
	"strconv"
	"strings"
)

// filter accumulates optional WHERE conditions with numbered placeholders.
type filter struct {
	conds []string
	args  []any
}

// eq adds "col = $n" when v is non-empty.
func (f *filter) eq(col, v string) {
	if v == "" {
		return
	}
	f.args = append(f.args, v)
	f.conds = append(f.conds, col+" = $"+itoa(len(f.args)))
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

func itoa(n int) string { return strconv.Itoa(n) }

// page appends LIMIT/OFFSET.
func (f *filter) page(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		f.args = append(f.args, limit)
		b.WriteString(" LIMIT $" + itoa(len(f.args)))
	}
	if offset > 0 {
		f.args = append(f.args, offset)
		b.WriteString(" OFFSET $" + itoa(len(f.args)))
	}
	return b.String()
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
