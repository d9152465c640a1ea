// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hd44780 controls the Hitachi LCD display chipset HD-44780 through
// a PCF8574 I²C backpack, as found on LCD1602 and LCD2004 modules.
//
// The controller is driven in 4-bit mode. Each byte is sent as two nibbles,
// high nibble first, and each nibble is latched by pulsing the enable line
// of the expander. Every pulse is a separate single byte I²C write made
// through a pcf857x.Dev sitting on an i2cbus.Dev, so several displays and other devices can share a
// port.
//
// Operations on one display hold the display's handle lock for their whole
// duration, so text written by two goroutines is never interleaved.
//
// # Datasheet
//
// https://www.sparkfun.com/datasheets/LCD/HD44780.pdf
//
// https://www.ti.com/lit/ds/symlink/pcf8574.pdf
package hd44780

import (
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/i2clcd/i2cbus"
	"github.com/GermanBionicSystems/i2clcd/pcf857x"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
)

type writeMode bool

const (
	modeCommand writeMode = false
	modeData    writeMode = true
)

// Instruction set.
const (
	cmdClear       byte = 0x01
	cmdHome        byte = 0x02
	cmdEntryLeft   byte = 0x04
	cmdEntryRight  byte = 0x06
	cmdEntryShift  byte = 0x01
	cmdDisplayOff  byte = 0x08
	cmdDisplayOn   byte = 0x0c
	cmdCursorOn    byte = 0x02
	cmdBlinkOn     byte = 0x01
	cmdCursorLeft  byte = 0x10
	cmdCursorRight byte = 0x14
	cmdShiftLeft   byte = 0x18
	cmdShiftRight  byte = 0x1c
	cmdReset8Bit   byte = 0x30
	cmdReset4Bit   byte = 0x20
	cmdFunctionSet byte = 0x28 // 4 bit, 2 lines, 5x7 font
	cmdSetCGRAM    byte = 0x40
	cmdSetDDRAM    byte = 0x80

	// Instructions below this value (clear, home) keep the controller busy
	// for longer than the others.
	slowCommandLimit byte = 0x04
)

// Delays of the startup sequence and the enable pulse.
const (
	DelayPowerOn = 15 * time.Millisecond
	DelayReset   = 5 * time.Millisecond
	DelayEnable  = time.Microsecond
	DelayClear   = 2 * time.Millisecond
)

// Family is the geometry of a display.
type Family int

const (
	LCD1602 Family = iota
	LCD2004
)

var families = [...]struct {
	name       string
	rows, cols int
	rowOffsets []byte
}{
	LCD1602: {name: "LCD1602", rows: 2, cols: 16, rowOffsets: []byte{0x00, 0x40}},
	LCD2004: {name: "LCD2004", rows: 4, cols: 20, rowOffsets: []byte{0x00, 0x40, 0x14, 0x54}},
}

func (f Family) valid() bool {
	return f >= LCD1602 && int(f) < len(families)
}

func (f Family) String() string {
	if !f.valid() {
		return fmt.Sprintf("Family(%d)", int(f))
	}
	return families[f].name
}

// Rows returns the number of lines of the display.
func (f Family) Rows() int {
	return families[f].rows
}

// Cols returns the number of characters per line.
func (f Family) Cols() int {
	return families[f].cols
}

// MaxCol is the last column SetCursor will move to.
func (f Family) MaxCol() int {
	return families[f].cols - 1
}

// CursorStyle selects how the cursor is shown.
type CursorStyle int

const (
	CursorInvisible CursorStyle = iota
	CursorUnderscore
	CursorUnderscoreBlink
	CursorBlink
)

// Direction is used for display shifts, cursor moves and the entry mode.
type Direction int

const (
	Left Direction = iota
	Right
)

// Opts configures a display.
type Opts struct {
	// Family defaults to LCD1602.
	Family Family
	// Timeout bounds the acquisition of the display and port locks. Zero
	// selects i2cbus.DefaultTimeout.
	Timeout time.Duration
	// Sleep is used for all protocol delays. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// HD44780 is a character display behind a PCF8574 backpack.
//
// Implements periph.io/x/conn/v3/display.TextDisplay and
// display.DisplayBacklight.
type HD44780 struct {
	bus    *i2cbus.Dev
	latch  *pcf857x.Dev
	family Family
	sleep  func(time.Duration)

	// Guarded by the handle lock of bus.
	backlight bool
	started   bool
	on        bool
	cursor    bool
	blink     bool
	entry     byte
}

// NewPCF857xBackpack creates the display at address on port and runs the
// controller's power-on initialization. The port should already be
// installed with reg.Init.
//
// The returned display has its backlight on, the display on, the cursor
// hidden and is cleared.
func NewPCF857xBackpack(reg *i2cbus.Registry, port i2cbus.PortID, address uint16, opts *Opts) (*HD44780, error) {
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if !o.Family.valid() {
		return nil, fmt.Errorf("hd44780: %w: unknown family %s", i2cbus.ErrInvalidArgument, o.Family)
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	dev, err := reg.NewDevice(port, address, &i2cbus.DevOpts{Timeout: o.Timeout})
	if err != nil {
		return nil, fmt.Errorf("hd44780: %w", err)
	}
	latch, err := pcf857x.New(dev, pcf857x.PCF8574)
	if err != nil {
		_ = dev.Delete()
		return nil, fmt.Errorf("hd44780: %w", err)
	}
	lcd := &HD44780{
		bus:       dev,
		latch:     latch,
		family:    o.Family,
		sleep:     o.Sleep,
		backlight: true,
	}
	if err = lcd.do("init", lcd.init); err != nil {
		_ = dev.Delete()
		return nil, err
	}
	return lcd, nil
}

// do runs fn while holding the display lock.
func (lcd *HD44780) do(op string, fn func() error) error {
	if lcd == nil {
		return fmt.Errorf("hd44780: %s: %w", op, i2cbus.ErrInvalidArgument)
	}
	if err := lcd.bus.Acquire(); err != nil {
		return fmt.Errorf("hd44780: %s: %w", op, err)
	}
	defer lcd.bus.Release()
	if err := fn(); err != nil {
		return fmt.Errorf("hd44780: %s: %w", op, err)
	}
	return nil
}

func (lcd *HD44780) command(op string, cmd byte) error {
	return lcd.do(op, func() error {
		return lcd.emit(cmd, modeCommand)
	})
}

// Family returns the display geometry.
func (lcd *HD44780) Family() Family {
	return lcd.family
}

// Delete releases the display's handle. Like i2cbus.Dev.Delete, it returns
// i2cbus.ErrTimeout and leaves the display usable if an operation is still
// in progress.
func (lcd *HD44780) Delete() error {
	if lcd == nil {
		return i2cbus.ErrInvalidArgument
	}
	if err := lcd.bus.Delete(); err != nil {
		return fmt.Errorf("hd44780: %w", err)
	}
	return nil
}

// Clears the screen and moves the cursor to the first position.
func (lcd *HD44780) Clear() error {
	return lcd.command("clear", cmdClear)
}

// Move the cursor home and undo any display shift.
func (lcd *HD44780) Home() error {
	return lcd.command("home", cmdHome)
}

// Write a set of bytes to the display. Text is not wrapped; bytes past the
// end of a line go to the controller's off-screen memory. n is the number of
// bytes sent before any error.
func (lcd *HD44780) Write(p []byte) (n int, err error) {
	err = lcd.do("write", func() error {
		for _, c := range p {
			if err := lcd.emit(c, modeData); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Write a string output to the display.
func (lcd *HD44780) WriteString(text string) (int, error) {
	return lcd.Write([]byte(text))
}

// SetCursor moves the cursor to the zero based column and row.
//
// A column past the last one of the display is clamped to the last column
// instead of spilling into the next line. A row that does not exist is an
// error.
func (lcd *HD44780) SetCursor(col, row int) error {
	if lcd == nil {
		return fmt.Errorf("hd44780: cursor: %w", i2cbus.ErrInvalidArgument)
	}
	f := families[lcd.family]
	if row < 0 || row >= f.rows || col < 0 {
		return fmt.Errorf("hd44780: cursor: %w: (%d,%d) outside of %s", i2cbus.ErrInvalidArgument, col, row, lcd.family)
	}
	col = min(col, lcd.family.MaxCol())
	return lcd.command("cursor", cmdSetDDRAM+f.rowOffsets[row]+byte(col))
}

// SetCursorStyle shows or hides the cursor and selects its blinking. It
// also turns the display on.
func (lcd *HD44780) SetCursorStyle(style CursorStyle) error {
	var cursor, blink bool
	switch style {
	case CursorInvisible:
	case CursorUnderscore:
		cursor = true
	case CursorUnderscoreBlink:
		cursor, blink = true, true
	case CursorBlink:
		blink = true
	default:
		return fmt.Errorf("hd44780: cursor style: %w: %d", i2cbus.ErrInvalidArgument, style)
	}
	return lcd.do("cursor style", func() error {
		return lcd.setDisplayControl(true, cursor, blink)
	})
}

// Shift scrolls the whole display one position. The cursor and the memory
// contents stay where they are.
func (lcd *HD44780) Shift(dir Direction) error {
	switch dir {
	case Left:
		return lcd.command("shift", cmdShiftLeft)
	case Right:
		return lcd.command("shift", cmdShiftRight)
	default:
		return fmt.Errorf("hd44780: shift: %w: direction %d", i2cbus.ErrInvalidArgument, dir)
	}
}

// MoveCursor moves the cursor one position without writing.
func (lcd *HD44780) MoveCursor(dir Direction) error {
	switch dir {
	case Left:
		return lcd.command("move", cmdCursorLeft)
	case Right:
		return lcd.command("move", cmdCursorRight)
	default:
		return fmt.Errorf("hd44780: move: %w: direction %d", i2cbus.ErrInvalidArgument, dir)
	}
}

// SetEntryMode selects the direction the cursor moves after each
// character written.
func (lcd *HD44780) SetEntryMode(dir Direction) error {
	var mode byte
	switch dir {
	case Left:
		mode = cmdEntryLeft
	case Right:
		mode = cmdEntryRight
	default:
		return fmt.Errorf("hd44780: entry mode: %w: direction %d", i2cbus.ErrInvalidArgument, dir)
	}
	return lcd.do("entry mode", func() error {
		return lcd.setEntry(mode | lcd.entry&cmdEntryShift)
	})
}

// CreateChar stores a 5x8 glyph in one of the eight CGRAM slots. Only the
// low 5 bits of each row are used. Writing byte slot then displays the
// glyph. Call SetCursor before writing text again.
func (lcd *HD44780) CreateChar(slot int, pattern [8]byte) error {
	if slot < 0 || slot > 7 {
		return fmt.Errorf("hd44780: create char: %w: slot %d", i2cbus.ErrInvalidArgument, slot)
	}
	return lcd.do("create char", func() error {
		if err := lcd.emit(cmdSetCGRAM|byte(slot)<<3, modeCommand); err != nil {
			return err
		}
		for _, row := range pattern {
			if err := lcd.emit(row&0x1f, modeData); err != nil {
				return err
			}
		}
		return nil
	})
}

func (lcd *HD44780) setDisplayControl(on, cursor, blink bool) error {
	val := cmdDisplayOff
	if on {
		val |= cmdDisplayOn
	}
	if cursor {
		val |= cmdCursorOn
	}
	if blink {
		val |= cmdBlinkOn
	}
	if err := lcd.emit(val, modeCommand); err != nil {
		return err
	}
	lcd.on, lcd.cursor, lcd.blink = on, cursor, blink
	return nil
}

func (lcd *HD44780) setEntry(mode byte) error {
	if err := lcd.emit(mode, modeCommand); err != nil {
		return err
	}
	lcd.entry = mode
	return nil
}

// Halt clears the display, turns the backlight off, and turns the display
// off. The handle stays valid; use Delete to release it.
func (lcd *HD44780) Halt() error {
	return errors.Join(lcd.Clear(), lcd.SetBacklight(false), lcd.Display(false))
}

var _ display.TextDisplay = &HD44780{}
var _ display.DisplayBacklight = &HD44780{}
var _ conn.Resource = &HD44780{}
