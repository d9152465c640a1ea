// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2clcd is a container for the character LCD stack.
//
// i2cbus arbitrates access to the I²C ports, pcf857x drives the expander on
// the backpack, and hd44780 drives the display controller behind it. lcdsim
// emulates backpacks for tests and for lcdctl -sim.
package i2clcd
