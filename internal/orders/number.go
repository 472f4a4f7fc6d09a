package orders

import (
	"fmt"
	"time"
)

// FormatNumber renders the human-readable order number for the seq-th order
// created on day (YYYYMMDD), e.g. ORD-20250314-007. Sequences past 999 keep
// growing.
func FormatNumber(day string, seq int) string {
	return fmt.Sprintf("ORD-%s-%03d", day, seq)
}

// DayKey is the date component of an order number. Days roll over in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}
