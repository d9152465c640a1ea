// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/GermanBionicSystems/i2clcd/hd44780"
	"github.com/GermanBionicSystems/i2clcd/i2cbus"
	"github.com/GermanBionicSystems/i2clcd/lcdsim"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/i2c"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, lcd string, args []string) error
}

var commands = map[string]command{
	"init":      {"init", cmdInit},
	"write":     {"write [-col N -row N] <text>", cmdWrite},
	"clear":     {"clear", cmdClear},
	"cursor":    {"cursor <col> <row>", cmdCursor},
	"style":     {"style <invisible|underscore|underscore-blink|blink>", cmdStyle},
	"shift":     {"shift <left|right> [n]", cmdShift},
	"backlight": {"backlight <on|off>", cmdBacklight},
	"char":      {"char <slot> <row0> ... <row7>", cmdChar},
	"demo":      {"demo [-n N] [-interval D]", cmdDemo},
	"snapshot":  {"snapshot [-png file] [line ...]", cmdSnapshot},
	"scan":      {"scan [-port N]", cmdScan},
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// subFlags returns a flag set for a command that reports errors rather than
// printing them.
func subFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func cmdInit(ctx context.Context, a *app, name string, args []string) error {
	if name != "" {
		_, err := a.display(name)
		return err
	}
	for _, d := range a.cfg.Displays {
		if _, err := a.display(d.Name); err != nil {
			return err
		}
	}
	return nil
}

func cmdWrite(ctx context.Context, a *app, name string, args []string) error {
	fs := subFlags("write")
	col := fs.Int("col", 0, "column")
	row := fs.Int("row", -1, "row; the cursor is left in place when negative")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	if *row >= 0 {
		if err := lcd.SetCursor(*col, *row); err != nil {
			return err
		}
	}
	_, err = lcd.WriteString(strings.Join(fs.Args(), " "))
	return err
}

func cmdClear(ctx context.Context, a *app, name string, args []string) error {
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	return lcd.Clear()
}

func cmdCursor(ctx context.Context, a *app, name string, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	col, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	row, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	return lcd.SetCursor(col, row)
}

var cursorStyles = map[string]hd44780.CursorStyle{
	"invisible":        hd44780.CursorInvisible,
	"underscore":       hd44780.CursorUnderscore,
	"underscore-blink": hd44780.CursorUnderscoreBlink,
	"blink":            hd44780.CursorBlink,
}

func cmdStyle(ctx context.Context, a *app, name string, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	style, ok := cursorStyles[args[0]]
	if !ok {
		return errUsage
	}
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	return lcd.SetCursorStyle(style)
}

func parseDirection(s string) (hd44780.Direction, error) {
	switch s {
	case "left":
		return hd44780.Left, nil
	case "right":
		return hd44780.Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func cmdShift(ctx context.Context, a *app, name string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	dir, err := parseDirection(args[0])
	if err != nil {
		return err
	}
	n := 1
	if len(args) == 2 {
		if n, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	for range n {
		if err := lcd.Shift(dir); err != nil {
			return err
		}
	}
	return nil
}

func cmdBacklight(ctx context.Context, a *app, name string, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errUsage
	}
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	return lcd.SetBacklight(args[0] == "on")
}

func cmdChar(ctx context.Context, a *app, name string, args []string) error {
	if len(args) != 9 {
		return errUsage
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	var pattern [8]byte
	for i, s := range args[1:] {
		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		pattern[i] = byte(v)
	}
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	if err := lcd.CreateChar(slot, pattern); err != nil {
		return err
	}
	return lcd.Home()
}

// cmdDemo runs a counter on the first display and scrolls four lines of
// text on the second one, each from its own goroutine.
func cmdDemo(ctx context.Context, a *app, name string, args []string) error {
	fs := subFlags("demo")
	n := fs.Int("n", 0, "number of ticks; runs until interrupted when 0")
	interval := fs.Duration("interval", time.Second, "time between ticks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(a.cfg.Displays) == 0 {
		return errors.New("no display configured")
	}
	counterName := a.cfg.Displays[0].Name
	scrollerName := counterName
	if len(a.cfg.Displays) > 1 {
		scrollerName = a.cfg.Displays[1].Name
	}
	counter, err := a.display(counterName)
	if err != nil {
		return err
	}
	scroller, err := a.display(scrollerName)
	if err != nil {
		return err
	}
	if err := counter.SetCursorStyle(hd44780.CursorUnderscoreBlink); err != nil {
		return err
	}
	if scroller != counter {
		if err := scroller.SetCursorStyle(hd44780.CursorBlink); err != nil {
			return err
		}
		for row := range scroller.Rows() {
			if err := scroller.SetCursor(0, row); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(scroller, "LINE%d", row); err != nil {
				return err
			}
		}
	}
	a.log.Info("demo is running", "counter", counterName, "scroller", scrollerName)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tick(ctx, *n, *interval, func(i int) error {
			if err := counter.SetCursor(0, 0); err != nil {
				return err
			}
			_, err := fmt.Fprintf(counter, "%08d", i)
			return err
		})
	})
	if scroller != counter {
		g.Go(func() error {
			return tick(ctx, *n, *interval, func(int) error {
				return scroller.Shift(hd44780.Left)
			})
		})
	}
	return g.Wait()
}

// tick calls fn n times, or until ctx is done when n is 0, waiting interval
// between calls.
func tick(ctx context.Context, n int, interval time.Duration, fn func(i int) error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for i := 0; n == 0 || i < n; i++ {
		if err := fn(i); err != nil {
			return err
		}
		if n != 0 && i == n-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
	return nil
}

// cmdSnapshot writes one argument per row of an emulated display and saves
// the result as an image.
func cmdSnapshot(ctx context.Context, a *app, name string, args []string) error {
	fs := subFlags("snapshot")
	png := fs.String("png", "", "save the display to this PNG file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := a.simLCD(name)
	if err != nil {
		return err
	}
	lcd, err := a.display(name)
	if err != nil {
		return err
	}
	if fs.NArg() > lcd.Rows() {
		return fmt.Errorf("%d lines for %d rows", fs.NArg(), lcd.Rows())
	}
	for row, line := range fs.Args() {
		if err := lcd.SetCursor(0, row); err != nil {
			return err
		}
		if _, err := lcd.WriteString(line); err != nil {
			return err
		}
	}
	if *png == "" {
		return nil
	}
	if err := lcdsim.SavePNG(l, *png); err != nil {
		return err
	}
	a.log.Info("snapshot saved", "path", *png)
	return nil
}

// Address ranges of the PCF8574 and PCF8574A.
var scanRanges = [][2]uint16{{0x20, 0x27}, {0x38, 0x3f}}

func cmdScan(ctx context.Context, a *app, name string, args []string) error {
	fs := subFlags("scan")
	port := fs.Int("port", a.cfg.Ports[0].ID, "port to scan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	bus := a.reg.Bus(i2cbus.PortID(*port), 100*time.Millisecond)
	found := 0
	for _, r := range scanRanges {
		for addr := r[0]; addr <= r[1]; addr++ {
			d := i2c.Dev{Bus: bus, Addr: addr}
			var latch [1]byte
			if err := d.Tx(nil, latch[:]); err != nil {
				if errors.Is(err, i2cbus.ErrFailure) {
					continue
				}
				return err
			}
			found++
			fmt.Fprintf(a.stdout, "0x%02x latch=0x%02x\n", addr, latch[0])
		}
	}
	fmt.Fprintf(a.stdout, "%d device(s) found on %s\n", found, bus)
	return nil
}
