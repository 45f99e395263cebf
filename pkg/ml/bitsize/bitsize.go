// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package bitsize accounts for the storage size of compressed models.
//
// Every layer that contributes to the size of a model implements Sizer, and Report aggregates them
// into a human-readable summary, including the bitrate when the model represents a signal of a known
// duration.
package bitsize

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

// Sizer is implemented by anything that knows its own storage size in bits.
type Sizer interface {
	BitSize() int
}

// Sum returns the total bit size of the given sizers. Nil sizers are ignored.
func Sum(sizers ...Sizer) int {
	var total int
	for _, s := range sizers {
		if s != nil {
			total += s.BitSize()
		}
	}
	return total
}

// Bytes returns the number of bytes needed to store the given number of bits.
func Bytes(bits int) uint64 {
	if bits <= 0 {
		return 0
	}
	return uint64((bits + 7) / 8)
}

// Kbps returns the bitrate in kilobits per second, of a representation with the given number of bits
// of a signal with the given duration. It returns 0 for non-positive durations.
func Kbps(bits int, seconds float64) float64 {
	if !(seconds > 0) {
		return 0
	}
	return float64(bits) / seconds / 1000
}

// Entry is one named line of a Report.
type Entry struct {
	Name string
	Bits int
}

// Report is a summary of the bit sizes of the parts of a model.
type Report struct {
	title   string
	entries []Entry
	seconds float64
}

// NewReport creates an empty report with the given title.
func NewReport(title string) *Report {
	return &Report{title: title}
}

// Add an entry with the size of s. It returns itself, so calls can be cascaded.
func (r *Report) Add(name string, s Sizer) *Report {
	return r.AddBits(name, s.BitSize())
}

// AddBits adds an entry with an explicit number of bits.
func (r *Report) AddBits(name string, bits int) *Report {
	r.entries = append(r.entries, Entry{Name: name, Bits: bits})
	return r
}

// Duration sets the duration in seconds of the represented signal, used to report the bitrate.
func (r *Report) Duration(seconds float64) *Report {
	r.seconds = seconds
	return r
}

// Entries returns the entries in the order they were added.
func (r *Report) Entries() []Entry { return r.entries }

// TotalBits returns the sum of the bits of all entries.
func (r *Report) TotalBits() int {
	var total int
	for _, e := range r.entries {
		total += e.Bits
	}
	return total
}

// Kbps returns the bitrate of the report, or 0 if no duration was set.
func (r *Report) Kbps() float64 {
	return Kbps(r.TotalBits(), r.seconds)
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 2)
)

// Table returns the report as a table with one row per entry, followed by the totals.
func (r *Report) Table() *lgtable.Table {
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Left)
			}
			return s.Align(lipgloss.Right)
		}).
		Headers("Part", "Bits", "Bytes")
	for _, row := range r.Rows() {
		table.Row(row...)
	}
	return table
}

// Rows returns the formatted cells of the table: one row per entry, the total, and, if a duration
// was set, the bitrate. The bitrate row has no bytes cell.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.entries)+2)
	for _, e := range r.entries {
		rows = append(rows, []string{e.Name, humanize.Comma(int64(e.Bits)), humanize.Bytes(Bytes(e.Bits))})
	}
	total := r.TotalBits()
	rows = append(rows, []string{"total", humanize.Comma(int64(total)), humanize.Bytes(Bytes(total))})
	if r.seconds > 0 {
		rows = append(rows, []string{fmt.Sprintf("kbps (%gs)", r.seconds), fmt.Sprintf("%.3f", r.Kbps()), ""})
	}
	return rows
}

// String renders the report, implementing fmt.Stringer.
func (r *Report) String() string {
	if r.title == "" {
		return r.Table().Render()
	}
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(r.title), r.Table().Render())
}
