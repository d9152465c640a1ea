// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2cbus serializes access to I²C ports that are shared by several
// peripheral devices.
//
// A Registry owns a small fixed set of port slots. Each installed port has a
// lock that is held for the duration of a single transaction, so two
// transactions never collide on the wire. Devices on a port are represented
// by a Dev handle. Every handle has a private lock of its own that higher
// level drivers use to keep a multi-transaction operation together, and that
// Delete takes before tearing the handle down.
//
// All lock acquisition is bounded by the handle's timeout. A failed
// acquisition returns ErrTimeout; nothing is retried automatically.
//
// # Transactions
//
// Transactions are described as a Script of start, address, data, repeated
// start and stop steps and executed by an Engine. TxEngine runs scripts on
// anything implementing tinygo.org/x/drivers.I2C, which includes every
// periph.io/x/conn/v3/i2c.Bus.
//
// Register addressed access uses an explicit Register selector:
//
//	dev.WriteReg(i2cbus.Reg(0x10), []byte{0x01})
//	dev.ReadReg(i2cbus.Reg(0x10), buf)
//	dev.Write([]byte{0x08}) // no register selector
package i2cbus
