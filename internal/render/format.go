// Package render turns snapshots into the text block shown in a terminal.
package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"trading-profilev1/internal/model"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"

	// ClearScreen homes the cursor and clears the screen and scrollback.
	ClearScreen = "\x1b[H\x1b[2J\x1b[3J"

	// DefaultLayout is the timestamp layout used in headers.
	DefaultLayout = "2006-01-02 15:04:05"

	barWidth = 20
)

// Options controls rendering.
type Options struct {
	Color    bool
	Layout   string         // defaults to DefaultLayout
	Location *time.Location // defaults to time.Local
}

// FormatMillis formats epoch milliseconds with layout in loc.
// An empty layout uses DefaultLayout; a nil loc uses time.Local.
func FormatMillis(ms int64, layout string, loc *time.Location) string {
	if layout == "" {
		layout = DefaultLayout
	}
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(layout)
}

// BarLength returns the number of bar characters for volume relative to
// max: volume/max scaled to 20, rounded, never less than 1.
func BarLength(volume, max float64) int {
	if max <= 0 {
		return 1
	}
	n := int(math.Round(math.Max(volume/max*barWidth, 1)))
	if n < 1 {
		n = 1
	}
	return n
}

// Format renders the header and profile rows of s.
//
// Header lines: latest pivot (time, kind, price) and live price count,
// fair value and value-area bounds, then the position sum and net count.
// One row follows per bucket, highest price first.
func Format(s model.Snapshot, opts Options) string {
	var b strings.Builder

	pivot := "-"
	if p := s.LastPivot; p != nil {
		pivot = fmt.Sprintf("%s %s %.2f",
			FormatMillis(p.Timestamp(), opts.Layout, opts.Location), p.Kind, p.Price())
	}
	fmt.Fprintf(&b, "[%s] [%d]\n", pivot, s.Levels)

	if s.HasValueArea {
		fmt.Fprintf(&b, "[%.2f] [%.2f - %.2f]\n", s.FairValue, s.ValueAreaLow, s.ValueAreaHi)
	} else {
		fmt.Fprintf(&b, "[%.2f] [-]\n", s.FairValue)
	}
	fmt.Fprintf(&b, "Trader: %.2f Position: %d\n", s.PositionSum, s.NetPosition)

	if len(s.Rows) == 0 {
		b.WriteString("No data\n")
		return b.String()
	}

	max := s.MaxVolume()
	for _, r := range s.Rows {
		writeRow(&b, r, max, opts.Color)
	}
	return b.String()
}

func writeRow(b *strings.Builder, r model.ProfileRow, max float64, color bool) {
	prefix := "  "
	if r.Current {
		prefix = "> "
	}

	start, end := "", ""
	if color {
		switch {
		case r.POC:
			start, end = ansiRed, ansiReset
		case r.InValueArea:
			start, end = ansiGreen, ansiReset
		}
	}

	fmt.Fprintf(b, "%s%-8s %s%s%s %.2f\n",
		prefix,
		fmt.Sprintf("%.2f", r.Price),
		start, strings.Repeat("=", BarLength(r.Volume, max)), end,
		r.Volume)
}
