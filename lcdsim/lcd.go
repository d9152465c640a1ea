// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcdsim emulates HD44780 character displays wired to PCF8574 I²C
// backpacks.
//
// A Bus implements periph.io/x/conn/v3/i2c.Bus. Every LCD attached to it
// decodes the latch writes addressed to it the way the controller would:
// data is taken on the falling edge of EN, the controller starts in 8-bit
// mode and follows function set instructions. The resulting display state can
// be inspected, printed to a terminal or rendered to an image.
package lcdsim

import (
	"fmt"
	"strings"
	"sync"
)

// Latch bit assignments of the common backpacks.
const (
	BitRS byte = 1 << 0
	BitRW byte = 1 << 1
	BitEN byte = 1 << 2
	BitBL byte = 1 << 3
)

const (
	lineLen   = 40
	line2Base = 0x40
	cgramSize = 64
)

// State is a snapshot of what a display shows.
type State struct {
	// Lines holds the visible characters of each row, display shift applied.
	Lines     []string
	Backlight bool
	On        bool
	Cursor    bool
	Blink     bool
	// Address is the DDRAM address counter.
	Address byte
	// Shift is the number of positions the display is shifted left.
	Shift int
}

// LCD is one emulated display.
type LCD struct {
	rows, cols int

	mu        sync.Mutex
	latch     byte
	latches   int
	eightBit  bool
	pending   bool
	high      byte
	ddram     [2][lineLen]byte
	cgram     [cgramSize]byte
	addr      byte
	cgMode    bool
	increment bool
	autoShift bool
	shift     int
	on        bool
	cursor    bool
	blink     bool
}

// NewLCD returns a display in its power-on state: 8-bit interface, display
// off, memory filled with spaces.
func NewLCD(rows, cols int) *LCD {
	l := &LCD{rows: rows, cols: cols, eightBit: true, increment: true}
	for i := range l.ddram {
		for j := range l.ddram[i] {
			l.ddram[i][j] = ' '
		}
	}
	return l
}

// Rows returns the number of visible rows.
func (l *LCD) Rows() int { return l.rows }

// Cols returns the number of visible columns.
func (l *LCD) Cols() int { return l.cols }

func (l *LCD) String() string {
	return fmt.Sprintf("LCD%02d%02d", l.cols, l.rows)
}

// Latch is the last byte written to the expander.
func (l *LCD) Latch() byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latch
}

// Latches returns the number of bytes written to the expander.
func (l *LCD) Latches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latches
}

// State returns a snapshot of the display.
func (l *LCD) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := State{
		Lines:     make([]string, l.rows),
		Backlight: l.latch&BitBL != 0,
		On:        l.on,
		Cursor:    l.cursor,
		Blink:     l.blink,
		Address:   l.addr,
		Shift:     l.shift,
	}
	for row := range l.rows {
		s.Lines[row] = string(l.visible(row))
	}
	return s
}

// Lines returns the visible text of each row.
func (l *LCD) Lines() []string {
	return l.State().Lines
}

// Text returns the visible rows joined by newlines.
func (l *LCD) Text() string {
	return strings.Join(l.Lines(), "\n")
}

// CGRAM returns the glyph stored in one of the eight custom character slots.
func (l *LCD) CGRAM(slot int) [8]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	var g [8]byte
	copy(g[:], l.cgram[(slot&7)*8:])
	return g
}

// CursorPos returns the visible zero based position of the address counter,
// and false if it is off screen.
func (l *LCD) CursorPos() (col, row int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line, pos := int(l.addr/line2Base), int(l.addr%line2Base)
	for r := range l.rows {
		lr, start := l.rowOrigin(r)
		if lr != line {
			continue
		}
		c := ((pos-start-l.shift)%lineLen + lineLen) % lineLen
		if c < l.cols {
			return c, r, true
		}
	}
	return 0, 0, false
}

// rowOrigin maps a visible row to its DDRAM line and start position. Four
// row displays continue row 0 on row 2, and row 1 on row 3.
func (l *LCD) rowOrigin(row int) (line, start int) {
	return row % 2, (row / 2) * l.cols
}

func (l *LCD) visible(row int) []byte {
	line, start := l.rowOrigin(row)
	out := make([]byte, l.cols)
	for c := range out {
		out[c] = l.ddram[line][((start+c+l.shift)%lineLen+lineLen)%lineLen]
	}
	return out
}

// write handles one byte written to the expander.
func (l *LCD) write(b byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.latch
	l.latch = b
	l.latches++
	if prev&BitEN == 0 || b&BitEN != 0 || prev&BitRW != 0 {
		return
	}
	// Falling edge of EN.
	l.nibble(prev&0xf0, prev&BitRS != 0)
}

func (l *LCD) nibble(n byte, data bool) {
	if l.eightBit {
		// D0-D3 are not wired and read as low.
		l.exec(n, data)
		return
	}
	if !l.pending {
		l.high, l.pending = n, true
		return
	}
	l.pending = false
	l.exec(l.high|n>>4, data)
}

func (l *LCD) exec(v byte, data bool) {
	if data {
		l.writeData(v)
		return
	}
	switch {
	case v&0x80 != 0:
		l.addr = normalize(v & 0x7f)
		l.cgMode = false
	case v&0x40 != 0:
		l.addr = v & 0x3f
		l.cgMode = true
	case v&0x20 != 0:
		l.eightBit = v&0x10 != 0
		l.pending = false
	case v&0x10 != 0:
		right := v&0x04 != 0
		if v&0x08 != 0 {
			if right {
				l.shift--
			} else {
				l.shift++
			}
			l.shift = (l.shift%lineLen + lineLen) % lineLen
		} else {
			l.step(right)
		}
	case v&0x08 != 0:
		l.on, l.cursor, l.blink = v&0x04 != 0, v&0x02 != 0, v&0x01 != 0
	case v&0x04 != 0:
		l.increment, l.autoShift = v&0x02 != 0, v&0x01 != 0
	case v&0x02 != 0:
		l.addr, l.shift, l.cgMode = 0, 0, false
	case v == 0x01:
		for i := range l.ddram {
			for j := range l.ddram[i] {
				l.ddram[i][j] = ' '
			}
		}
		l.addr, l.shift, l.cgMode, l.increment = 0, 0, false, true
	}
}

func (l *LCD) writeData(v byte) {
	if l.cgMode {
		l.cgram[l.addr] = v & 0x1f
		if l.increment {
			l.addr = (l.addr + 1) % cgramSize
		} else {
			l.addr = (l.addr + cgramSize - 1) % cgramSize
		}
		return
	}
	l.ddram[l.addr/line2Base][l.addr%line2Base] = v
	l.step(l.increment)
	if l.autoShift {
		if l.increment {
			l.shift = (l.shift + 1) % lineLen
		} else {
			l.shift = (l.shift + lineLen - 1) % lineLen
		}
	}
}

// step moves the DDRAM address counter, wrapping from the end of one line
// to the start of the other.
func (l *LCD) step(forward bool) {
	line, pos := l.addr/line2Base, l.addr%line2Base
	if forward {
		pos++
		if pos == lineLen {
			pos, line = 0, line^1
		}
	} else {
		if pos == 0 {
			pos, line = lineLen, line^1
		}
		pos--
	}
	l.addr = line*line2Base + pos
}

func normalize(a byte) byte {
	line, pos := a/line2Base, a%line2Base
	if pos >= lineLen {
		pos = lineLen - 1
	}
	return line*line2Base + pos
}
