// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// This package provides a driver for the TI/NXP PCF857X I2C I/O Expander. These
// devices provide 8 pins (PCF8574) or 16 pins (PCF8575) of
// "quasi-bidirectional" input/output. This device is commonly used in LCD
// backpacks, particularly those sold as LCD2004, LCD1602.
//
// The PCF8575 is a 16-pin device that is functionally identical to the PCF8574.
// When communicating with the PCF8575 reads and writes are 2 bytes wide, while
// they're one byte wide with the PCF8574.
//
// The expander is reached through an i2cbus.Dev, so each write or read is one
// transaction under the port lock.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/pcf8574.pdf
//
// A good description of the I2C LCD backpack usage can be found here:
//
// https://www.handsontec.com/dataspecs/I2C_2004_LCD.pdf
//
// # Notes
//
// Reading a pin consists of writing a High out of it, and then reading it to
// see if it is still high, or if something pulls it low.
//
// Setting a pin to Low activates an Open Drain to ground.
//
// This chip doesn't implement normal i2c register architectures. You write 8 or
// 16 bits out, and that sets the corresponding pins, or you read 8/16 bits and
// get the state of the pins.
package pcf857x

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/i2clcd/i2cbus"
	"periph.io/x/conn/v3/gpio"
)

// Variant represents the actual chip model.
type Variant string

const (
	PCF8574 Variant = "PCF8574"
	PCF8575 Variant = "PCF8575"

	// DefaultAddress of the PCF8574. Backpacks are often strapped to 0x27,
	// or 0x3f with a PCF8574A.
	DefaultAddress uint16 = 0x20
)

// Dev is representation of a PCF857x device.
type Dev struct {
	width    int
	mask     gpio.GPIOValue
	chipType Variant

	mu    sync.Mutex
	d     *i2cbus.Dev
	value gpio.GPIOValue
}

// New returns the expander behind d. Nothing is written until the first
// Write. After power up all pins are high.
func New(d *i2cbus.Dev, chip Variant) (*Dev, error) {
	dev := &Dev{d: d, chipType: chip}
	switch chip {
	case PCF8574:
		dev.width = 8
	case PCF8575:
		dev.width = 16
	default:
		return nil, fmt.Errorf("pcf857x: %w: unknown variant %q", i2cbus.ErrInvalidArgument, chip)
	}
	dev.mask = gpio.GPIOValue((1 << dev.width) - 1)
	dev.value = dev.mask
	return dev, nil
}

// Width returns the number of pins.
func (dev *Dev) Width() int {
	return dev.width
}

// Write drives all pins. The value is always sent, even when it matches the
// last one, as strobe lines rely on repeated writes.
func (dev *Dev) Write(value gpio.GPIOValue) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.write(value & dev.mask)
}

// Out changes the pins identified by mask and leaves the others as last
// written. The write is skipped if nothing changes.
func (dev *Dev) Out(value, mask gpio.GPIOValue) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	wrValue := dev.value & (dev.mask ^ mask)
	wrValue |= value & mask
	if dev.value == wrValue {
		return nil
	}
	return dev.write(wrValue)
}

// write performs the low-level write to the device.
func (dev *Dev) write(value gpio.GPIOValue) error {
	w := make([]byte, dev.width/8)
	for ix := range w {
		w[ix] = byte(value >> (ix * 8))
	}
	if err := dev.d.Write(w); err != nil {
		return fmt.Errorf("pcf857x: %w", err)
	}
	dev.value = value
	return nil
}

// Read returns the state of the pins identified by mask. Those pins are
// first released high so that they can be read.
func (dev *Dev) Read(mask gpio.GPIOValue) (gpio.GPIOValue, error) {
	if err := dev.Out(mask, mask); err != nil {
		return 0, err
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	r := make([]byte, dev.width/8)
	if err := dev.d.Read(r); err != nil {
		return 0, fmt.Errorf("pcf857x: %w", err)
	}
	var result gpio.GPIOValue
	for ix, b := range r {
		result |= gpio.GPIOValue(b) << (ix * 8)
	}
	return result & mask, nil
}

// Value returns the last value written.
func (dev *Dev) Value() gpio.GPIOValue {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.value
}

func (dev *Dev) String() string {
	return fmt.Sprintf("%s_%x", dev.chipType, dev.d.Addr())
}
