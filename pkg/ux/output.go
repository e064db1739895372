// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides styled terminal output for the connectome CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - headers
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Styles holds the lipgloss styles of one Printer.
type Styles struct {
	Title     lipgloss.Style
	Muted     lipgloss.Style
	Bold      lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box    lipgloss.Style
	Border lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
}

// NewStyles builds the palette styles on renderer r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:     r.NewStyle().Bold(true).Foreground(ColorTealBright),
		Muted:     r.NewStyle().Foreground(ColorSlate),
		Bold:      r.NewStyle().Bold(true),
		Success:   r.NewStyle().Foreground(ColorSuccess),
		Warning:   r.NewStyle().Foreground(ColorWarning),
		Error:     r.NewStyle().Foreground(ColorError),
		Highlight: r.NewStyle().Foreground(ColorTealBright).Bold(true),

		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
		Border: r.NewStyle().Foreground(ColorTealDeep),
		Header: r.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
		Cell:   r.NewStyle().Padding(0, 1),
	}
}

// Printer writes styled output to one writer.
//
// # Description
//
// Colors follow the writer: a terminal gets the palette, anything else
// (pipes, files, buffers) gets plain text with the same layout.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Printer struct {
	w      io.Writer
	styles Styles
}

// NewPrinter creates a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styles: NewStyles(lipgloss.NewRenderer(w))}
}

// Styles returns the printer's styles.
func (p *Printer) Styles() Styles {
	return p.styles
}

// Render returns the icon styled for its status.
func (p *Printer) Render(i Icon) string {
	switch i {
	case IconSuccess:
		return p.styles.Success.Render(string(i))
	case IconWarning:
		return p.styles.Warning.Render(string(i))
	case IconError:
		return p.styles.Error.Render(string(i))
	default:
		return p.styles.Muted.Render(string(i))
	}
}

// Title prints a styled title line.
func (p *Printer) Title(text string) {
	p.line(p.styles.Title.Render(text))
}

// Success prints text after a check mark.
func (p *Printer) Success(text string) {
	p.line(p.Render(IconSuccess) + " " + p.styles.Success.Render(text))
}

// Warning prints text after a warning sign.
func (p *Printer) Warning(text string) {
	p.line(p.Render(IconWarning) + " " + p.styles.Warning.Render(text))
}

// Error prints text after a cross.
func (p *Printer) Error(text string) {
	p.line(p.Render(IconError) + " " + p.styles.Error.Render(text))
}

// Info prints text after a muted bar.
func (p *Printer) Info(text string) {
	p.line(p.styles.Muted.Render("│") + " " + text)
}

// Muted prints secondary text.
func (p *Printer) Muted(text string) {
	p.line(p.styles.Muted.Render(text))
}

// Box prints content in a rounded box under a title.
func (p *Printer) Box(title, content string) {
	p.line(p.styles.Box.Render(p.styles.Title.Render(title) + "\n" + content))
}

// Path prints nodes joined by arrows, followed by a muted note.
func (p *Printer) Path(nodes []string, note string) {
	sep := " " + p.Render(IconArrow) + " "
	styled := make([]string, len(nodes))
	for i, n := range nodes {
		styled[i] = p.styles.Highlight.Render(n)
	}
	out := strings.Join(styled, sep)
	if note != "" {
		out += "  " + p.styles.Muted.Render(note)
	}
	p.line(out)
}

// Table prints rows under headers with a themed border.
func (p *Printer) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.styles.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.styles.Header
			}
			return p.styles.Cell
		})
	p.line(t.Render())
}

// Summary prints labelled counts on one line, e.g. "3 datasets  10 edges".
func (p *Printer) Summary(pairs ...Count) {
	parts := make([]string, 0, len(pairs))
	for _, c := range pairs {
		parts = append(parts, p.styles.Bold.Render(fmt.Sprint(c.Value))+" "+p.styles.Muted.Render(c.Label))
	}
	p.line(strings.Join(parts, "  "))
}

// Count is one labelled value of a Summary.
type Count struct {
	Label string
	Value int
}

func (p *Printer) line(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}
