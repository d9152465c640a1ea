// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// ErrFixedSpeed is returned by SetSpeed on a bus returned by Registry.Bus.
var ErrFixedSpeed = errors.New("i2cbus: port speed is set by Init")

// Bus returns an i2c.Bus view of port id. Its transactions take the port
// lock like those of a Dev, so periph drivers can share the port with
// handles. timeout bounds the lock acquisition of each Tx; zero selects
// DefaultTimeout.
func (r *Registry) Bus(id PortID, timeout time.Duration) i2c.Bus {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &portBus{r: r, id: id, timeout: timeout}
}

type portBus struct {
	r       *Registry
	id      PortID
	timeout time.Duration
}

func (b *portBus) String() string {
	return fmt.Sprintf("i2cbus%d", b.id)
}

// Tx implements i2c.Bus.
func (b *portBus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return fmt.Errorf("%w: 0x%x is not a 7-bit address", ErrInvalidArgument, addr)
	}
	a := byte(addr << 1)
	s := new(Script).Start()
	if len(w) != 0 || len(r) == 0 {
		s.Address(a).Write(w)
		if len(r) != 0 {
			s.RepeatedStart()
		}
	}
	if len(r) != 0 {
		s.Address(a|1).Read(r, true)
	}
	s.Stop()
	return b.r.exec(b.id, addr, b.timeout, s)
}

// SetSpeed implements i2c.Bus.
func (b *portBus) SetSpeed(f physic.Frequency) error {
	return ErrFixedSpeed
}

var _ i2c.Bus = &portBus{}
