// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"errors"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// ErrUnsupportedScript is returned by TxEngine for scripts that cannot be
// expressed as a single write-then-read transaction.
var ErrUnsupportedScript = errors.New("i2cbus: unsupported script")

// Engine performs the electrical side of a transaction.
type Engine interface {
	// Exec runs the script to completion. timeout is the budget of the
	// calling handle; engines that cannot bound a transaction ignore it.
	Exec(s *Script, timeout time.Duration) error
}

// TxEngine runs scripts on a bus exposing a combined write-then-read
// transaction, such as a periph i2c.Bus or a TinyGo machine.I2C.
//
// A script may contain one write phase, optionally followed by a repeated
// start and one read phase, addressed to a single device. The underlying
// bus always NACKs the final byte of a read.
type TxEngine struct {
	Bus drivers.I2C
}

// Exec implements Engine.
func (e *TxEngine) Exec(s *Script, timeout time.Duration) error {
	t, err := fold(s)
	if err != nil {
		return err
	}
	if len(t.reads) == 1 {
		return e.Bus.Tx(t.addr, t.w, t.reads[0])
	}
	var r []byte
	if t.n > 0 {
		r = make([]byte, t.n)
	}
	if err := e.Bus.Tx(t.addr, t.w, r); err != nil {
		return err
	}
	off := 0
	for _, p := range t.reads {
		off += copy(p, r[off:])
	}
	return nil
}

// Close closes the underlying bus if it supports it.
func (e *TxEngine) Close() error {
	if c, ok := e.Bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type foldedTx struct {
	addr  uint16
	w     []byte
	reads [][]byte
	n     int
}

const (
	stIdle = iota
	stStarted
	stWriting
	stReading
	stStopped
)

// fold turns a script into the arguments of a single Tx call.
func fold(s *Script) (foldedTx, error) {
	var t foldedTx
	if s == nil {
		return t, ErrUnsupportedScript
	}
	state := stIdle
	addressed := false
	restarted := false
	bad := func(op Op) (foldedTx, error) {
		return foldedTx{}, fmt.Errorf("%w: unexpected %s in %q", ErrUnsupportedScript, op.Kind, s.String())
	}
	for _, op := range s.Ops {
		switch op.Kind {
		case OpStart:
			if state != stIdle {
				return bad(op)
			}
			state = stStarted
		case OpRepeatedStart:
			if state != stWriting || restarted {
				return bad(op)
			}
			restarted = true
			state = stStarted
		case OpAddress:
			if state != stStarted || len(op.Data) != 1 {
				return bad(op)
			}
			a := uint16(op.Data[0] >> 1)
			if addressed && a != t.addr {
				return bad(op)
			}
			t.addr = a
			addressed = true
			if op.Data[0]&1 != 0 {
				state = stReading
			} else {
				if restarted {
					return bad(op)
				}
				state = stWriting
			}
		case OpWrite:
			if state != stWriting {
				return bad(op)
			}
			t.w = append(t.w, op.Data...)
		case OpRead:
			if state != stReading {
				return bad(op)
			}
			t.reads = append(t.reads, op.Data)
			t.n += len(op.Data)
		case OpStop:
			if state != stWriting && state != stReading {
				return bad(op)
			}
			state = stStopped
		default:
			return bad(op)
		}
	}
	if state != stStopped {
		return foldedTx{}, fmt.Errorf("%w: %q is not terminated by a stop", ErrUnsupportedScript, s.String())
	}
	return t, nil
}

// Opener installs the transaction engine of a port.
type Opener interface {
	Open(id PortID, cfg PortConfig) (Engine, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(id PortID, cfg PortConfig) (Engine, error)

// Open implements Opener.
func (f OpenerFunc) Open(id PortID, cfg PortConfig) (Engine, error) {
	return f(id, cfg)
}

// BusOpener installs ports onto buses that already exist, indexed by port.
// It is typically used with i2ctest buses or an lcdsim.Bus.
type BusOpener map[PortID]drivers.I2C

// Open implements Opener.
func (o BusOpener) Open(id PortID, cfg PortConfig) (Engine, error) {
	b, ok := o[id]
	if !ok || b == nil {
		return nil, fmt.Errorf("i2cbus: no bus for port %d", id)
	}
	if sp, ok := b.(interface{ SetSpeed(physic.Frequency) error }); ok {
		if err := sp.SetSpeed(cfg.Frequency); err != nil {
			return nil, err
		}
	}
	return &TxEngine{Bus: b}, nil
}

// PeriphOpener installs ports through the periph I²C bus registry. host.Init
// must have been called before.
//
// PortConfig.Bus is the bus name or number passed to i2creg.Open; the empty
// string selects the first bus. When the bus reports its pins, the SDA and
// SCL names of the config must match them.
type PeriphOpener struct{}

// Open implements Opener.
func (PeriphOpener) Open(id PortID, cfg PortConfig) (Engine, error) {
	bc, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, err
	}
	if err := checkPins(bc, cfg); err != nil {
		_ = bc.Close()
		return nil, err
	}
	if err := bc.SetSpeed(cfg.Frequency); err != nil {
		_ = bc.Close()
		return nil, err
	}
	return &TxEngine{Bus: bc}, nil
}

func checkPins(b i2c.Bus, cfg PortConfig) error {
	p, ok := b.(i2c.Pins)
	if !ok {
		return nil
	}
	if cfg.SDA != "" && p.SDA().Name() != cfg.SDA {
		return fmt.Errorf("i2cbus: %s: SDA is %s, not %s", b, p.SDA().Name(), cfg.SDA)
	}
	if cfg.SCL != "" && p.SCL().Name() != cfg.SCL {
		return fmt.Errorf("i2cbus: %s: SCL is %s, not %s", b, p.SCL().Name(), cfg.SCL)
	}
	return nil
}

var _ Engine = &TxEngine{}
var _ Opener = BusOpener{}
var _ Opener = PeriphOpener{}
