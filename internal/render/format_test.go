package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-profilev1/internal/model"
)

func sample() model.Snapshot {
	pivot := &model.Pivot{Kind: model.PivotHigh, Bar: model.Bar{High: 101.5, Timestamp: 0}}
	return model.Snapshot{
		LastPivot:    pivot,
		Levels:       5,
		HasValueArea: true,
		FairValue:    100,
		ValueAreaLow: 99,
		ValueAreaHi:  100,
		PositionSum:  -0.5,
		NetPosition:  -1,
		Rows: []model.ProfileRow{
			{Price: 101, Volume: 2},
			{Price: 100, Volume: 10, POC: true, InValueArea: true, Current: true},
			{Price: 99, Volume: 5, InValueArea: true},
			{Price: 98, Volume: 0.1},
		},
	}
}

func TestFormat_Plain(t *testing.T) {
	out := Format(sample(), Options{Location: time.UTC})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7)

	assert.Equal(t, "[1970-01-01 00:00:00 HIGH 101.50] [5]", lines[0])
	assert.Equal(t, "[100.00] [99.00 - 100.00]", lines[1])
	assert.Equal(t, "Trader: -0.50 Position: -1", lines[2])
	assert.Equal(t, "  101.00   ==== 2.00", lines[3])
	assert.Equal(t, "> 100.00   ==================== 10.00", lines[4])
	assert.Equal(t, "  99.00    ========== 5.00", lines[5])
	assert.Equal(t, "  98.00    = 0.10", lines[6], "tiny volumes still get one bar")
}

func TestFormat_Color(t *testing.T) {
	out := Format(sample(), Options{Color: true, Location: time.UTC})
	assert.Contains(t, out, ansiRed+strings.Repeat("=", 20)+ansiReset)
	assert.Contains(t, out, ansiGreen+strings.Repeat("=", 10)+ansiReset)
	assert.Contains(t, out, "  101.00   ==== 2.00", "rows outside the value area stay uncoloured")
}

func TestFormat_Empty(t *testing.T) {
	out := Format(model.Snapshot{}, Options{})
	assert.True(t, strings.HasPrefix(out, "[-] [0]\n[0.00] [-]\n"))
	assert.True(t, strings.HasSuffix(out, "No data\n"))
}

func TestBarLength(t *testing.T) {
	assert.Equal(t, 20, BarLength(10, 10))
	assert.Equal(t, 10, BarLength(5, 10))
	assert.Equal(t, 1, BarLength(0, 10))
	assert.Equal(t, 1, BarLength(0.01, 10))
	assert.Equal(t, 1, BarLength(3, 0))
	assert.Equal(t, 3, BarLength(1.25, 10), "2.5 rounds half away from zero")
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "2023-11-14 22:13:20", FormatMillis(1700000000000, "", time.UTC))
	assert.Equal(t, "22:13", FormatMillis(1700000000000, "15:04", time.UTC))
	loc := time.FixedZone("UTC+2", 2*3600)
	assert.Equal(t, "2023-11-15 00:13:20", FormatMillis(1700000000000, "", loc))
}

func TestTerminal_Run(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, Options{Location: time.UTC})

	ch := make(chan model.Snapshot, 2)
	ch <- sample()
	ch <- model.Snapshot{}
	close(ch)
	term.Run(context.Background(), ch)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, ClearScreen))
	assert.True(t, strings.HasSuffix(out, "No data\n"))
}
