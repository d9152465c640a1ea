// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"bytes"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

var (
	// Backlit is the bezel color of a display with the backlight on.
	Backlit = color.NRGBA{0x40, 0x80, 0xff, 0xff}
	// Unlit is the bezel color of a display with the backlight off.
	Unlit = color.NRGBA{0x20, 0x30, 0x20, 0xff}
)

// TermOpts represents the options available for a Terminal.
type TermOpts struct {
	Palette *ansi256.Palette
	// W defaults to colorable stdout.
	W io.Writer

	_ struct{}
}

// Terminal prints displays to a console using ANSI color codes.
type Terminal struct {
	w       io.Writer
	palette ansi256.Palette
	buf     bytes.Buffer
}

// NewTerminal returns a Terminal writing to opts.W.
func NewTerminal(opts *TermOpts) *Terminal {
	o := TermOpts{}
	if opts != nil {
		o = *opts
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := o.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Terminal{w: w, palette: *p}
}

func (t *Terminal) String() string {
	return "Terminal"
}

// Render prints the display framed by a bezel colored after the backlight.
// The cell under a visible cursor is underlined.
func (t *Terminal) Render(l *LCD) error {
	s := l.State()
	col, row, ok := l.CursorPos()
	bezel := t.palette.Block(Unlit)
	if s.Backlight {
		bezel = t.palette.Block(Backlit)
	}
	t.buf.Reset()
	edge := func() {
		for range l.Cols() + 2 {
			_, _ = t.buf.WriteString(bezel)
		}
		_, _ = t.buf.WriteString("\033[0m\n")
	}
	edge()
	for r, line := range s.Lines {
		_, _ = t.buf.WriteString(bezel)
		_, _ = t.buf.WriteString("\033[0m")
		for c := range line {
			ch := printable(line[c])
			if !s.On {
				ch = ' '
			}
			if s.On && ok && (s.Cursor || s.Blink) && r == row && c == col {
				_, _ = t.buf.WriteString("\033[4m")
				_ = t.buf.WriteByte(ch)
				_, _ = t.buf.WriteString("\033[24m")
				continue
			}
			_ = t.buf.WriteByte(ch)
		}
		_, _ = t.buf.WriteString(bezel)
		_, _ = t.buf.WriteString("\033[0m\n")
	}
	edge()
	_, err := t.buf.WriteTo(t.w)
	return err
}

// printable maps characters outside of printable ASCII, including custom
// glyphs, to a placeholder.
func printable(c byte) byte {
	if c < 0x20 || c > 0x7e {
		return '?'
	}
	return c
}
