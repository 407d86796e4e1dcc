// Package report renders run progress and the final run summary for humans.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Progress is the throughput snapshot taken after every block.
type Progress struct {
	Generated uint64
	Total     uint64
	Speed     float64
	ETA       time.Duration
}

// Reporter receives progress events from the block loop.
type Reporter interface {
	Progress(p Progress)
	Checkpoint(digits uint64)
}

// Discard ignores every event.
type Discard struct{}

// Progress implements Reporter.
func (Discard) Progress(Progress) {}

// Checkpoint implements Reporter.
func (Discard) Checkpoint(uint64) {}

// Console prints one line per event.
type Console struct {
	out    io.Writer
	count  *color.Color
	speed  *color.Color
	notice *color.Color
}

// NewConsole returns a Console writing to out, colourised when colorize is set.
func NewConsole(out io.Writer, colorize bool) *Console {
	c := &Console{
		out:    out,
		count:  color.New(color.FgCyan),
		speed:  color.New(color.FgGreen),
		notice: color.New(color.FgYellow),
	}

	for _, col := range []*color.Color{c.count, c.speed, c.notice} {
		if colorize {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}

	return c
}

// Progress prints "generated/total | speed digits/s | ETA x min".
func (c *Console) Progress(p Progress) {
	fmt.Fprintf(c.out, "%s/%s | %s digits/s | ETA %s min\n",
		c.count.Sprint(humanize.Comma(toInt64(p.Generated))),
		humanize.Comma(toInt64(p.Total)),
		c.speed.Sprint(humanize.CommafWithDigits(math.Round(p.Speed), 0)),
		strconv.FormatFloat(p.ETA.Minutes(), 'f', 1, 64),
	)
}

// Checkpoint prints a notice that a checkpoint was saved.
func (c *Console) Checkpoint(digits uint64) {
	fmt.Fprintf(c.out, "%s at %s digits\n", c.notice.Sprint("Checkpoint saved"), humanize.Comma(toInt64(digits)))
}

// Summary describes a finished run.
type Summary struct {
	Digits          uint64
	Iterations      int
	Resumed         bool
	Elapsed         time.Duration
	BinaryBytes     uint64
	Segments        int
	DigestAlgorithm string
	Digest          string
	ArchivePath     string
	ArchiveBytes    uint64
	HexDigits       int
}

// RenderSummary formats s as a two-column table.
func RenderSummary(s Summary) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.AppendHeader(table.Row{"Item", "Value"})

	speed := 0.0
	if s.Elapsed > 0 {
		speed = float64(s.Digits) / s.Elapsed.Seconds()
	}

	tbl.AppendRows([]table.Row{
		{"Digits", humanize.Comma(toInt64(s.Digits))},
		{"Iterations", s.Iterations},
		{"Resumed", s.Resumed},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
		{"Speed", humanize.CommafWithDigits(math.Round(speed), 0) + " digits/s"},
		{"Binary", humanize.IBytes(s.BinaryBytes)},
		{"Segments", s.Segments},
		{"Digest (" + s.DigestAlgorithm + ")", s.Digest},
	})

	if s.ArchivePath != "" {
		tbl.AppendRow(table.Row{"Archive", fmt.Sprintf("%s (%s)", s.ArchivePath, humanize.IBytes(s.ArchiveBytes))})
	}

	if s.HexDigits > 0 {
		tbl.AppendRow(table.Row{"Hex digits", humanize.Comma(int64(s.HexDigits))})
	}

	return tbl.Render()
}

func toInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}
