// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GermanBionicSystems/i2clcd/config"
	"github.com/GermanBionicSystems/i2clcd/hd44780"
	"github.com/GermanBionicSystems/i2clcd/i2cbus"
	"github.com/GermanBionicSystems/i2clcd/lcdsim"
	"github.com/GermanBionicSystems/i2clcd/logging"
	"periph.io/x/host/v3"
)

type appOpts struct {
	configPath string
	sim        bool
	verbose    bool
	stdout     io.Writer
	stderr     io.Writer
}

// app holds the registry and the displays opened by a command.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	reg    *i2cbus.Registry
	stdout io.Writer
	sleep  func(time.Duration)

	sims  map[int]*lcdsim.Bus
	lcds  map[string]*hd44780.HD44780
	order []string
}

func newApp(o appOpts) (*app, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.sim {
		cfg.Simulate = true
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	log := logging.New(cfg.Logging, version)

	a := &app{
		cfg:    cfg,
		log:    log,
		stdout: o.stdout,
		sleep:  time.Sleep,
		sims:   map[int]*lcdsim.Bus{},
		lcds:   map[string]*hd44780.HD44780{},
	}

	var opener i2cbus.Opener
	if cfg.Simulate {
		buses := i2cbus.BusOpener{}
		for _, p := range cfg.Ports {
			b := lcdsim.NewBus(fmt.Sprintf("sim%d", p.ID))
			a.sims[p.ID] = b
			buses[i2cbus.PortID(p.ID)] = b
		}
		for _, d := range cfg.Displays {
			f, err := parseFamily(d.Family)
			if err != nil {
				return nil, err
			}
			a.sims[d.Port].Attach(d.Address, f.Rows(), f.Cols())
		}
		opener = buses
		a.sleep = func(time.Duration) {}
	} else {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("initializing host: %w", err)
		}
		opener = i2cbus.PeriphOpener{}
	}

	a.reg = i2cbus.NewRegistry(&i2cbus.Opts{
		Opener: opener,
		Logger: log.Logger,
	})
	for _, p := range cfg.Ports {
		err := a.reg.Init(i2cbus.PortID(p.ID), i2cbus.PortConfig{
			Bus:       p.Bus,
			SDA:       p.SDA,
			SCL:       p.SCL,
			Frequency: p.Frequency(),
			PullUp:    p.PullUp,
		})
		if err != nil {
			_ = a.reg.Close()
			return nil, fmt.Errorf("port %d: %w", p.ID, err)
		}
	}
	log.Debug("ports installed", "ports", len(cfg.Ports), "simulate", cfg.Simulate)
	return a, nil
}

func parseFamily(s string) (hd44780.Family, error) {
	switch s {
	case "1602":
		return hd44780.LCD1602, nil
	case "2004":
		return hd44780.LCD2004, nil
	}
	return 0, fmt.Errorf("unknown display family %q", s)
}

// display initializes the display called name, or the first configured one
// when name is empty. Displays are initialized once per run.
func (a *app) display(name string) (*hd44780.HD44780, error) {
	if name == "" {
		if len(a.cfg.Displays) == 0 {
			return nil, errors.New("no display configured")
		}
		name = a.cfg.Displays[0].Name
	}
	if lcd, ok := a.lcds[name]; ok {
		return lcd, nil
	}
	d, ok := a.cfg.Display(name)
	if !ok {
		return nil, fmt.Errorf("no display called %q", name)
	}
	f, err := parseFamily(d.Family)
	if err != nil {
		return nil, err
	}
	lcd, err := hd44780.NewPCF857xBackpack(a.reg, i2cbus.PortID(d.Port), d.Address, &hd44780.Opts{
		Family:  f,
		Timeout: d.Timeout(),
		Sleep:   a.sleep,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	a.log.Info("display initialized", "name", name, "display", lcd.String())
	a.lcds[name] = lcd
	a.order = append(a.order, name)
	return lcd, nil
}

// simLCD returns the emulated display behind name.
func (a *app) simLCD(name string) (*lcdsim.LCD, error) {
	if !a.cfg.Simulate {
		return nil, errors.New("only available with -sim")
	}
	if name == "" && len(a.cfg.Displays) > 0 {
		name = a.cfg.Displays[0].Name
	}
	d, ok := a.cfg.Display(name)
	if !ok {
		return nil, fmt.Errorf("no display called %q", name)
	}
	return a.sims[d.Port].LCD(d.Address), nil
}

// show prints the emulated displays used by the command.
func (a *app) show() error {
	if !a.cfg.Simulate {
		return nil
	}
	term := lcdsim.NewTerminal(&lcdsim.TermOpts{W: a.stdout})
	for _, name := range a.order {
		l, err := a.simLCD(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s (%s):\n", name, l)
		if err := term.Render(l); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() {
	for _, name := range a.order {
		if err := a.lcds[name].Delete(); err != nil {
			a.log.Warn("deleting display", "name", name, "error", err)
		}
	}
	if err := a.reg.Close(); err != nil {
		a.log.Warn("closing ports", "error", err)
	}
}
