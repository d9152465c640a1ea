// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hd44780

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Bit assignments of the PCF8574 latch on the common backpacks. The upper
// nibble carries D4-D7 of the controller.
const (
	bitRS byte = 1 << 0
	bitRW byte = 1 << 1
	bitEN byte = 1 << 2
	bitBL byte = 1 << 3
)

// emit sends one byte as two enable pulsed nibbles.
//
// Until the 4-bit reset instruction has been sent, the controller may still
// be in 8-bit mode, so only the high nibble goes out.
func (lcd *HD44780) emit(value byte, mode writeMode) error {
	if err := lcd.pulse(value&0xf0, mode); err != nil {
		return err
	}
	if !lcd.started {
		if mode == modeCommand && value == cmdReset4Bit {
			lcd.started = true
		}
		return nil
	}
	if err := lcd.pulse(value<<4, mode); err != nil {
		return err
	}
	if mode == modeCommand && value < slowCommandLimit {
		lcd.sleep(DelayClear)
	}
	return nil
}

// pulse writes nibble to the latch with EN low, high and low again.
func (lcd *HD44780) pulse(nibble byte, mode writeMode) error {
	latch := nibble
	if mode == modeData {
		latch |= bitRS
	}
	if lcd.backlight {
		latch |= bitBL
	}
	for _, b := range [...]byte{latch, latch | bitEN, latch} {
		if err := lcd.latch.Write(gpio.GPIOValue(b)); err != nil {
			return err
		}
		lcd.sleep(DelayEnable)
	}
	return nil
}

var initSequence = [...]struct {
	cmd   byte
	delay time.Duration
}{
	{cmdReset8Bit, DelayReset},
	{cmdReset8Bit, DelayReset},
	{cmdReset8Bit, 0},
	{cmdReset4Bit, 0},
	{cmdFunctionSet, 0},
	{cmdDisplayOff, 0},
	{cmdClear, 0},
	{cmdEntryRight, 0},
	{cmdDisplayOn, 0},
}

// init runs the reset by instruction sequence and leaves the display on,
// cleared, with the cursor hidden and left to right entry.
func (lcd *HD44780) init() error {
	lcd.started = false
	lcd.sleep(DelayPowerOn)
	for i, step := range initSequence {
		if err := lcd.emit(step.cmd, modeCommand); err != nil {
			return fmt.Errorf("step %d (0x%02x): %w", i, step.cmd, err)
		}
		if step.delay > 0 {
			lcd.sleep(step.delay)
		}
	}
	lcd.on, lcd.cursor, lcd.blink = true, false, false
	lcd.entry = cmdEntryRight
	return nil
}

// SetBacklight switches the backlight. The new state is written to the latch
// immediately, and is kept on every following write.
func (lcd *HD44780) SetBacklight(on bool) error {
	return lcd.do("backlight", func() error {
		lcd.backlight = on
		var latch byte
		if on {
			latch = bitBL
		}
		return lcd.latch.Write(gpio.GPIOValue(latch))
	})
}
