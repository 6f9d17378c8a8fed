package tournament

import (
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d as "1d 2h 3m 4s", omitting zero units.
// Sub-second precision is dropped; zero renders as "0s".
func FormatDuration(d time.Duration) string {
	return FormatSeconds(int64(d / time.Second))
}

// FormatSeconds renders a number of seconds like FormatDuration. Scores
// of time-based objectives are expressed in seconds.
func FormatSeconds(total int64) string {
	if total <= 0 {
		return "0s"
	}
	units := []struct {
		suffix string
		size   int64
	}{
		{"d", 86400},
		{"h", 3600},
		{"m", 60},
		{"s", 1},
	}

	var b strings.Builder
	for _, u := range units {
		n := total / u.size
		if n == 0 {
			continue
		}
		total -= n * u.size
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(n, 10))
		b.WriteString(u.suffix)
	}
	return b.String()
}
