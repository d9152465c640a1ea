// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"
)

// PortID identifies a physical I²C port of a Registry.
type PortID int

const (
	// MaxPorts is the number of port slots of a Registry.
	MaxPorts = 2

	// DefaultFrequency is the clock used when PortConfig.Frequency is zero.
	DefaultFrequency = 100 * physic.KiloHertz

	// DefaultTimeout is the lock timeout of a handle created without one.
	DefaultTimeout = time.Second
)

// Mode is the role of the host on a port.
type Mode uint8

const (
	ModeMaster Mode = iota
	// ModeSlave is recognised so configurations can name it, but Init
	// rejects it.
	ModeSlave
)

func (m Mode) String() string {
	switch m {
	case ModeMaster:
		return "master"
	case ModeSlave:
		return "slave"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// PortConfig describes how a port is wired and clocked.
type PortConfig struct {
	Mode Mode
	// Bus is handed to the Opener, for example a periph bus name.
	Bus string
	// SDA and SCL are the names of the data and clock pins.
	SDA, SCL string
	// Frequency is the bus clock. Zero selects DefaultFrequency.
	Frequency physic.Frequency
	// PullUp enables the internal pull-ups. Ports are normally installed
	// without them and rely on the resistors fitted on the bus.
	PullUp bool
}

// Opts configures a Registry. The zero value is usable.
type Opts struct {
	// Opener installs port engines. Defaults to PeriphOpener.
	Opener Opener
	// NewMutex allocates port and handle locks. Defaults to NewMutex.
	NewMutex MutexFactory
	// Logger receives diagnostics. Defaults to discarding them.
	Logger *slog.Logger
}

type port struct {
	initMu    sync.Mutex
	installed atomic.Bool
	mu        Mutex
	cfg       PortConfig
	engine    Engine
}

// Registry owns the port slots and hands out device handles.
//
// A Registry is safe for concurrent use.
type Registry struct {
	ports    [MaxPorts]port
	opener   Opener
	newMutex MutexFactory
	log      *slog.Logger
}

// NewRegistry returns a Registry with all ports uninstalled.
func NewRegistry(opts *Opts) *Registry {
	r := &Registry{
		opener:   PeriphOpener{},
		newMutex: NewMutex,
		log:      slog.New(slog.DiscardHandler),
	}
	if opts != nil {
		if opts.Opener != nil {
			r.opener = opts.Opener
		}
		if opts.NewMutex != nil {
			r.newMutex = opts.NewMutex
		}
		if opts.Logger != nil {
			r.log = opts.Logger
		}
	}
	r.log = r.log.With("component", "i2cbus")
	return r
}

func (r *Registry) slot(id PortID) (*port, error) {
	if id < 0 || id >= MaxPorts {
		return nil, fmt.Errorf("%w %d", ErrInvalidPort, id)
	}
	return &r.ports[id], nil
}

// Init installs port id. Calling it again for an installed port returns nil
// and leaves the port untouched.
//
// If the lock cannot be allocated or the engine cannot be opened, the port
// stays uninstalled and an error matching ErrFailure is returned. Concurrent
// calls for the same port are serialized; only the first one installs it.
func (r *Registry) Init(id PortID, cfg PortConfig) error {
	if r == nil {
		return ErrInvalidArgument
	}
	p, err := r.slot(id)
	if err != nil {
		return err
	}
	if p.installed.Load() {
		return nil
	}
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.installed.Load() {
		return nil
	}
	if cfg.Mode != ModeMaster {
		return fmt.Errorf("%w: port %d: %s mode is not supported", ErrInvalidArgument, id, cfg.Mode)
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	// The lock is allocated once per slot and survives Close.
	if p.mu == nil {
		mu, err := r.newMutex()
		if err != nil || mu == nil {
			return fmt.Errorf("%w: port %d: lock allocation: %v", ErrFailure, id, err)
		}
		p.mu = mu
	}
	engine, err := r.opener.Open(id, cfg)
	if err != nil {
		return fmt.Errorf("%w: port %d: %w", ErrFailure, id, err)
	}
	p.cfg = cfg
	p.engine = engine
	p.installed.Store(true)
	r.log.Info("port installed",
		"port", int(id),
		"bus", cfg.Bus,
		"sda", cfg.SDA,
		"scl", cfg.SCL,
		"frequency", cfg.Frequency.String(),
		"pullup", cfg.PullUp)
	return nil
}

// Installed reports whether port id has been initialized.
func (r *Registry) Installed(id PortID) bool {
	p, err := r.slot(id)
	return err == nil && p.installed.Load()
}

// Config returns the configuration port id was installed with.
func (r *Registry) Config(id PortID) (PortConfig, bool) {
	p, err := r.slot(id)
	if err != nil || !p.installed.Load() {
		return PortConfig{}, false
	}
	return p.cfg, true
}

// Close uninstalls every port, waiting up to DefaultTimeout for in-flight
// transactions, and closes the engines that support it.
func (r *Registry) Close() error {
	var errs []error
	for ix := range r.ports {
		p := &r.ports[ix]
		p.initMu.Lock()
		if p.installed.Load() {
			if err := p.mu.Lock(DefaultTimeout); err != nil {
				errs = append(errs, fmt.Errorf("port %d: %w", ix, err))
				p.initMu.Unlock()
				continue
			}
			p.installed.Store(false)
			if c, ok := p.engine.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, fmt.Errorf("i2cbus: port %d: %w", ix, err))
				}
			}
			p.engine = nil
			p.mu.Unlock()
		}
		p.initMu.Unlock()
	}
	return errors.Join(errs...)
}

// exec runs s on port id while holding the port lock. addr is only used for
// diagnostics.
func (r *Registry) exec(id PortID, addr uint16, timeout time.Duration, s *Script) error {
	p, err := r.slot(id)
	if err != nil {
		return err
	}
	if !p.installed.Load() {
		return fmt.Errorf("%w: port %d", ErrNotInstalled, id)
	}
	if err := p.mu.Lock(timeout); err != nil {
		return fmt.Errorf("%w: port %d busy", err, id)
	}
	defer p.mu.Unlock()
	// Close may have won the race for the lock.
	if !p.installed.Load() {
		return fmt.Errorf("%w: port %d", ErrNotInstalled, id)
	}
	if err := p.engine.Exec(s, timeout); err != nil {
		r.log.Error("device not found",
			"port", int(id),
			"addr", fmt.Sprintf("0x%02x", addr),
			"script", s.String(),
			"error", err)
		return fmt.Errorf("%w: 0x%02x at port %d: %w", ErrFailure, addr, id, err)
	}
	return nil
}
