// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hd44780

import (
	"fmt"

	"periph.io/x/conn/v3/display"
)

// Enable or disable autoscroll. When enabled, the display shifts at every
// character written and the cursor stays in place.
func (lcd *HD44780) AutoScroll(enabled bool) error {
	return lcd.do("autoscroll", func() error {
		mode := lcd.entry &^ cmdEntryShift
		if enabled {
			mode |= cmdEntryShift
		}
		return lcd.setEntry(mode)
	})
}

// Backlight turns the backlight on for any non-zero intensity.
func (lcd *HD44780) Backlight(intensity display.Intensity) error {
	return lcd.SetBacklight(intensity > 0)
}

// Return the number of columns the display supports
func (lcd *HD44780) Cols() int {
	return lcd.family.Cols()
}

// Return the number of rows the display supports.
func (lcd *HD44780) Rows() int {
	return lcd.family.Rows()
}

// Return the min column position.
func (lcd *HD44780) MinCol() int {
	return 1
}

// Return the min row position.
func (lcd *HD44780) MinRow() int {
	return 1
}

// Set the cursor mode. You can pass multiple arguments.
// Cursor(CursorOff, CursorUnderline)
func (lcd *HD44780) Cursor(modes ...display.CursorMode) error {
	return lcd.do("cursor", func() error {
		cursor, blink := lcd.cursor, lcd.blink
		for _, mode := range modes {
			switch mode {
			case display.CursorOff:
				cursor, blink = false, false
			case display.CursorUnderline:
				cursor = true
			case display.CursorBlock, display.CursorBlink:
				blink = true
			default:
				return fmt.Errorf("unexpected cursor: %d", mode)
			}
		}
		return lcd.setDisplayControl(lcd.on, cursor, blink)
	})
}

// Move the cursor forward or backward.
func (lcd *HD44780) Move(dir display.CursorDirection) error {
	switch dir {
	case display.Backward:
		return lcd.MoveCursor(Left)
	case display.Forward:
		return lcd.MoveCursor(Right)
	default:
		return fmt.Errorf("hd44780: %w", display.ErrNotImplemented)
	}
}

// Move the cursor to arbitrary position. Row and column are one based and
// must be on the display.
func (lcd *HD44780) MoveTo(row, col int) error {
	if row < lcd.MinRow() || row > lcd.Rows() || col < lcd.MinCol() || col > lcd.Cols() {
		return fmt.Errorf("hd44780: MoveTo(%d,%d) value out of range", row, col)
	}
	return lcd.SetCursor(col-1, row-1)
}

// Turn the display on / off
func (lcd *HD44780) Display(on bool) error {
	return lcd.do("display", func() error {
		return lcd.setDisplayControl(on, lcd.cursor, lcd.blink)
	})
}

// Return info about the display.
func (lcd *HD44780) String() string {
	return fmt.Sprintf("HD44780::%s - Rows: %d, Cols: %d", lcd.bus, lcd.Rows(), lcd.Cols())
}
