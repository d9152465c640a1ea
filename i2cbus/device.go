// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Register selects a device register ahead of the data of a transaction.
//
// The zero value, NoRegister, selects nothing and turns register addressed
// calls into plain reads and writes.
type Register struct {
	b       []byte
	present bool
}

// NoRegister is the absent register selector.
var NoRegister Register

// Reg returns a selector made of the given bytes, sent in order. Reg with no
// bytes is NoRegister.
func Reg(b ...byte) Register {
	if len(b) == 0 {
		return NoRegister
	}
	return Register{b: b, present: true}
}

// Present reports whether the selector is sent at all.
func (r Register) Present() bool {
	return r.present
}

// Bytes returns the selector bytes.
func (r Register) Bytes() []byte {
	return r.b
}

func (r Register) String() string {
	if !r.present {
		return "NoRegister"
	}
	return fmt.Sprintf("Reg(% x)", r.b)
}

// DevOpts configures a device handle.
type DevOpts struct {
	// Timeout bounds every lock acquisition done on behalf of the handle.
	// Zero selects DefaultTimeout.
	Timeout time.Duration
}

// Dev is a handle on one addressable device of a port.
//
// Transactions only take the port lock. The handle's own lock is exposed by
// Acquire and Release for drivers that need several transactions to appear
// as one operation.
type Dev struct {
	r       *Registry
	port    PortID
	addr    uint16
	timeout time.Duration
	mu      Mutex
	deleted atomic.Bool
}

// NewDevice creates a handle for the 7-bit address addr on port id. It does
// not touch the bus, and the port does not need to be installed yet.
func (r *Registry) NewDevice(id PortID, addr uint16, opts *DevOpts) (*Dev, error) {
	if r == nil {
		return nil, ErrInvalidArgument
	}
	if _, err := r.slot(id); err != nil {
		return nil, err
	}
	if addr > 0x7f {
		return nil, fmt.Errorf("%w: 0x%x is not a 7-bit address", ErrInvalidArgument, addr)
	}
	mu, err := r.newMutex()
	if err != nil || mu == nil {
		return nil, fmt.Errorf("%w: device 0x%02x lock allocation: %v", ErrFailure, addr, err)
	}
	d := &Dev{
		r:       r,
		port:    id,
		addr:    addr,
		timeout: DefaultTimeout,
		mu:      mu,
	}
	if opts != nil && opts.Timeout > 0 {
		d.timeout = opts.Timeout
	}
	r.log.Info("new device has been created", "port", int(id), "addr", fmt.Sprintf("0x%02x", addr))
	return d, nil
}

// Port returns the port the device is on.
func (d *Dev) Port() PortID {
	return d.port
}

// Addr returns the 7-bit device address.
func (d *Dev) Addr() uint16 {
	return d.addr
}

// Timeout returns the lock timeout of the handle.
func (d *Dev) Timeout() time.Duration {
	return d.timeout
}

// WriteAddr is the address byte of a write transfer.
func (d *Dev) WriteAddr() byte {
	return byte(d.addr << 1)
}

// ReadAddr is the address byte of a read transfer.
func (d *Dev) ReadAddr() byte {
	return byte(d.addr<<1) | 1
}

func (d *Dev) String() string {
	return fmt.Sprintf("i2c%d:0x%02x", d.port, d.addr)
}

func (d *Dev) valid() bool {
	return d != nil && d.r != nil && !d.deleted.Load()
}

// Acquire takes the handle's lock within the handle's timeout. It returns
// ErrTimeout if that fails and ErrInvalidArgument for a nil or deleted
// handle.
func (d *Dev) Acquire() error {
	if !d.valid() {
		return ErrInvalidArgument
	}
	if err := d.mu.Lock(d.timeout); err != nil {
		return fmt.Errorf("%w: %s busy", err, d)
	}
	if d.deleted.Load() {
		d.mu.Unlock()
		return ErrInvalidArgument
	}
	return nil
}

// Release gives back the lock taken by Acquire.
func (d *Dev) Release() {
	d.mu.Unlock()
}

// Delete tears the handle down. It must first take the handle's lock; if
// that times out ErrTimeout is returned and the handle is left as it was, so
// the caller can retry.
func (d *Dev) Delete() error {
	if !d.valid() {
		return ErrInvalidArgument
	}
	if err := d.mu.Lock(d.timeout); err != nil {
		return fmt.Errorf("%w: %s in use", err, d)
	}
	d.deleted.Store(true)
	d.mu.Unlock()
	d.r.log.Info("device has been deleted", "port", int(d.port), "addr", fmt.Sprintf("0x%02x", d.addr))
	return nil
}

// WriteReg writes data to the device, preceded by the register selector when
// one is present.
func (d *Dev) WriteReg(reg Register, data []byte) error {
	if !d.valid() {
		return ErrInvalidArgument
	}
	s := new(Script).Start().Address(d.WriteAddr())
	if reg.Present() {
		s.Write(reg.Bytes())
	}
	s.Write(data).Stop()
	return d.r.exec(d.port, d.addr, d.timeout, s)
}

// ReadReg fills data from the device. When a register selector is present it
// is written first and the read follows a repeated start.
func (d *Dev) ReadReg(reg Register, data []byte) error {
	if !d.valid() {
		return ErrInvalidArgument
	}
	s := new(Script).Start()
	if reg.Present() {
		s.Address(d.WriteAddr()).Write(reg.Bytes()).RepeatedStart()
	}
	s.Address(d.ReadAddr()).Read(data, true).Stop()
	if err := d.r.exec(d.port, d.addr, d.timeout, s); err != nil {
		return err
	}
	d.r.log.Debug("read", "device", d.String(), "reg", reg.String(), "data", fmt.Sprintf("% x", data))
	return nil
}

// Write writes data to the device.
func (d *Dev) Write(data []byte) error {
	return d.WriteReg(NoRegister, data)
}

// Read fills data from the device.
func (d *Dev) Read(data []byte) error {
	return d.ReadReg(NoRegister, data)
}
