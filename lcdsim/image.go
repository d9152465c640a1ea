// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Cell geometry of rendered images, in pixels.
const (
	CellW   = 10
	CellH   = 16
	Border  = 12
	dotSize = 2
)

var (
	pixelOn  = color.NRGBA{0xf0, 0xf0, 0xff, 0xff}
	pixelOff = color.NRGBA{0x10, 0x20, 0x60, 0xff}
)

// Render draws the display, one CellW by CellH cell per character. Custom
// characters are drawn from CGRAM.
func Render(l *LCD) image.Image {
	return newContext(l).Image()
}

// SavePNG renders the display to a PNG file.
func SavePNG(l *LCD, path string) error {
	return newContext(l).SavePNG(path)
}

func newContext(l *LCD) *gg.Context {
	s := l.State()
	dc := gg.NewContext(l.Cols()*CellW+2*Border, l.Rows()*CellH+2*Border)
	if s.Backlight {
		dc.SetColor(Backlit)
	} else {
		dc.SetColor(Unlit)
	}
	dc.Clear()
	if !s.On {
		return dc
	}
	dc.SetFontFace(basicfont.Face7x13)
	col, row, ok := l.CursorPos()
	for r, line := range s.Lines {
		for c := range line {
			x := float64(Border + c*CellW)
			y := float64(Border + r*CellH)
			ch := line[c]
			if ch < 0x10 {
				drawGlyph(dc, l.CGRAM(int(ch)), x, y)
			} else {
				dc.SetColor(pixelOn)
				dc.DrawString(string(rune(printable(ch))), x+1, y+12)
			}
			if ok && s.Cursor && r == row && c == col {
				dc.SetColor(pixelOn)
				dc.DrawRectangle(x, y+CellH-dotSize, CellW-1, dotSize)
				dc.Fill()
			}
		}
	}
	return dc
}

func drawGlyph(dc *gg.Context, g [8]byte, x, y float64) {
	for gy, bits := range g {
		for gx := range 5 {
			if bits&(0x10>>gx) == 0 {
				dc.SetColor(pixelOff)
			} else {
				dc.SetColor(pixelOn)
			}
			dc.DrawRectangle(x+float64(gx*dotSize), y+float64(gy*dotSize), dotSize-0.5, dotSize-0.5)
			dc.Fill()
		}
	}
}
