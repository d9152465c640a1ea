// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// lcdctl drives HD44780 character displays behind PCF8574 I²C backpacks.
//
// Usage:
//
//	lcdctl [flags] <command> [args]
//
// Commands:
//
//	init                      initialize the display
//	write [-col N -row N] txt write text, optionally at a position
//	clear                     clear the display
//	cursor <col> <row>        move the cursor
//	style <style>             invisible, underscore, underscore-blink, blink
//	shift <left|right> [n]    shift the display
//	backlight <on|off>        switch the backlight
//	char <slot> <8 hex rows>  store a custom character
//	demo [-n N] [-interval D] counter on one display, scrolling on another
//	snapshot [-png file] ...  write one line per row and save it (-sim)
//	scan                      probe the PCF8574 address ranges of a port
//
// Every command starts by initializing the displays it uses, which clears
// them. With -sim the hardware is replaced by emulated displays, which are
// printed once the command is done.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version information, set at build time via ldflags.
var version = "dev"

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "lcdctl: %v\n", err)
		}
		os.Exit(1)
	}
}

// run parses the global flags, sets up the displays and runs one command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lcdctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file; defaults and I2CLCD_* variables are used when empty")
	sim := fs.Bool("sim", false, "use emulated displays instead of the hardware")
	lcdName := fs.String("lcd", "", "display to use; defaults to the first configured one")
	verbose := fs.Bool("v", false, "log at debug level")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: lcdctl [flags] <command> [args]\n\ncommands: %s\n\nflags:\n", commandNames())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: no command", errUsage)
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, fs.Arg(0))
	}

	a, err := newApp(appOpts{
		configPath: *configPath,
		sim:        *sim,
		verbose:    *verbose,
		stdout:     stdout,
		stderr:     stderr,
	})
	if err != nil {
		return err
	}
	defer a.close()
	if err := cmd.run(ctx, a, *lcdName, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w: lcdctl %s", err, cmd.usage)
		}
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	return a.show()
}
