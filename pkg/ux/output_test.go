// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

// =============================================================================
// Plain output
// =============================================================================

func TestPrinter_BufferGetsNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Title("Datasets")
	p.Success("imported")
	p.Warning("skipped 2 synapses")
	p.Info("note")
	p.Muted("muted")
	p.Error("failed")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no ANSI escapes for a buffer, got %q", out)
	}
	for _, want := range []string{"Datasets", "✓ imported", "⚠ skipped 2 synapses", "│ note", "muted", "✗ failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
	if got := strings.Count(out, "\n"); got != 6 {
		t.Errorf("expected 6 lines, got %d", got)
	}
}

// =============================================================================
// Table
// =============================================================================

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Table(
		[]string{"ID", "NAME", "VISUAL TIME"},
		[][]string{
			{"d1", "L1", "10"},
			{"d2", "Adult", "50"},
		},
	)

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// Top border, header, separator, two rows, bottom border.
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "VISUAL TIME") {
		t.Errorf("expected header row, got %q", lines[1])
	}
	if !strings.Contains(lines[4], "Adult") {
		t.Errorf("expected last data row to hold Adult, got %q", lines[4])
	}

	width := len([]rune(lines[0]))
	for i, l := range lines {
		if n := len([]rune(l)); n != width {
			t.Errorf("line %d has width %d, want %d: %q", i, n, width, l)
		}
	}
}

func TestPrinter_TableWithoutRows(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Table([]string{"PRE", "POST"}, nil)
	if !strings.Contains(buf.String(), "PRE") {
		t.Errorf("expected headers without rows, got %q", buf.String())
	}
}

// =============================================================================
// Path and Summary
// =============================================================================

func TestPrinter_Path(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Path([]string{"AVAR", "AVAL", "RMED"}, "(weight 3)")

	want := "AVAR → AVAL → RMED  (weight 3)\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestPrinter_PathWithoutNote(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Path([]string{"A"}, "")
	if buf.String() != "A\n" {
		t.Errorf("expected %q, got %q", "A\n", buf.String())
	}
}

func TestPrinter_Summary(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Summary(Count{Label: "nodes", Value: 3}, Count{Label: "edges", Value: 2})

	want := "3 nodes  2 edges\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestPrinter_Box(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Box("Reload", "published on connectome.reimport")

	out := buf.String()
	if !strings.Contains(out, "Reload") || !strings.Contains(out, "published on connectome.reimport") {
		t.Errorf("expected title and content in box, got %q", out)
	}
	if !strings.Contains(out, "╭") {
		t.Errorf("expected rounded border, got %q", out)
	}
}

func TestPrinter_Render(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow, IconBullet} {
		if got := p.Render(icon); got != string(icon) {
			t.Errorf("expected plain %q, got %q", icon, got)
		}
	}
}
