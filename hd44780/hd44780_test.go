// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hd44780

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GermanBionicSystems/i2clcd/i2cbus"
	"github.com/GermanBionicSystems/i2clcd/lcdsim"
	"github.com/google/go-cmp/cmp"
	periphDisplay "periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/display/displaytest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

const testAddr = 0x27

type sleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleeper) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
}

func (s *sleeper) counts() map[time.Duration]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := map[time.Duration]int{}
	for _, d := range s.sleeps {
		m[d]++
	}
	return m
}

func (s *sleeper) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = nil
}

func newRegistry(t *testing.T, bus i2c.Bus) *i2cbus.Registry {
	t.Helper()
	reg := i2cbus.NewRegistry(&i2cbus.Opts{Opener: i2cbus.BusOpener{0: bus}})
	if err := reg.Init(0, i2cbus.PortConfig{SDA: "GPIO21", SCL: "GPIO22"}); err != nil {
		t.Fatal(err)
	}
	return reg
}

func newLCD(t *testing.T, bus i2c.Bus, family Family) (*HD44780, *sleeper) {
	t.Helper()
	s := &sleeper{}
	lcd, err := NewPCF857xBackpack(newRegistry(t, bus), 0, testAddr, &Opts{
		Family:  family,
		Timeout: 50 * time.Millisecond,
		Sleep:   s.sleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	return lcd, s
}

// latches returns the bytes written to the expander and forgets them.
func latches(t *testing.T, rec *i2ctest.Record) []byte {
	t.Helper()
	rec.Lock()
	defer rec.Unlock()
	var out []byte
	for _, op := range rec.Ops {
		if op.Addr != testAddr || len(op.W) != 1 {
			t.Fatalf("unexpected transaction %#v", op)
		}
		out = append(out, op.W[0])
	}
	rec.Ops = nil
	return out
}

// decode reassembles bytes sent as pairs of enable pulsed nibbles.
func decode(t *testing.T, l []byte) []byte {
	t.Helper()
	if len(l)%6 != 0 {
		t.Fatalf("%d latches is not a whole number of bytes", len(l))
	}
	var out []byte
	for i := 0; i < len(l); i += 6 {
		if l[i+1]&bitEN == 0 || l[i+4]&bitEN == 0 {
			t.Fatalf("missing enable pulse in % x", l[i:i+6])
		}
		out = append(out, l[i+1]&0xf0|l[i+4]>>4)
	}
	return out
}

func TestInit(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, s := newLCD(t, rec, LCD1602)
	want := []byte{
		0x38, 0x3c, 0x38,
		0x38, 0x3c, 0x38,
		0x38, 0x3c, 0x38,
		0x28, 0x2c, 0x28,
		0x28, 0x2c, 0x28, 0x88, 0x8c, 0x88,
		0x08, 0x0c, 0x08, 0x88, 0x8c, 0x88,
		0x08, 0x0c, 0x08, 0x18, 0x1c, 0x18,
		0x08, 0x0c, 0x08, 0x68, 0x6c, 0x68,
		0x08, 0x0c, 0x08, 0xc8, 0xcc, 0xc8,
	}
	if diff := cmp.Diff(want, latches(t, rec)); diff != "" {
		t.Fatalf("init mismatch (-want +got):\n%s", diff)
	}
	wantSleeps := map[time.Duration]int{
		DelayPowerOn: 1,
		DelayReset:   2,
		DelayClear:   1,
		DelayEnable:  len(want),
	}
	if diff := cmp.Diff(wantSleeps, s.counts()); diff != "" {
		t.Fatalf("delays mismatch (-want +got):\n%s", diff)
	}
	if s.sleeps[0] != DelayPowerOn {
		t.Fatalf("first delay %s", s.sleeps[0])
	}
	if got := lcd.String(); got != "HD44780::i2c0:0x27 - Rows: 2, Cols: 16" {
		t.Errorf("String() = %q", got)
	}
}

func TestNibbleFraming(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD1602)
	latches(t, rec)
	if err := lcd.command("test", cmdFunctionSet); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x28, 0x2c, 0x28, 0x88, 0x8c, 0x88}
	if diff := cmp.Diff(want, latches(t, rec)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBacklight(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD1602)
	latches(t, rec)
	if err := lcd.SetBacklight(false); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x00}, latches(t, rec)); diff != "" {
		t.Fatalf("backlight off mismatch (-want +got):\n%s", diff)
	}
	if _, err := lcd.WriteString("A"); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x41, 0x45, 0x41, 0x11, 0x15, 0x11}
	if diff := cmp.Diff(want, latches(t, rec)); diff != "" {
		t.Fatalf("write mismatch (-want +got):\n%s", diff)
	}
	if err := lcd.Backlight(0xff); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x08}, latches(t, rec)); diff != "" {
		t.Fatalf("backlight on mismatch (-want +got):\n%s", diff)
	}
}

func TestSetCursor(t *testing.T) {
	tests := []struct {
		family   Family
		col, row int
		want     byte
	}{
		{LCD1602, 0, 0, 0x80},
		{LCD1602, 5, 1, 0xc5},
		{LCD1602, 20, 1, 0xcf},
		{LCD2004, 25, 0, 0x93},
		{LCD2004, 0, 2, 0x94},
		{LCD2004, 19, 3, 0xe7},
	}
	for _, tc := range tests {
		rec := &i2ctest.Record{}
		lcd, _ := newLCD(t, rec, tc.family)
		latches(t, rec)
		if err := lcd.SetCursor(tc.col, tc.row); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]byte{tc.want}, decode(t, latches(t, rec))); diff != "" {
			t.Errorf("%s SetCursor(%d, %d) mismatch (-want +got):\n%s", tc.family, tc.col, tc.row, diff)
		}
	}
}

func TestSetCursorClampFraming(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD2004)
	latches(t, rec)
	if err := lcd.SetCursor(25, 0); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x98, 0x9c, 0x98, 0x38, 0x3c, 0x38}
	if diff := cmp.Diff(want, latches(t, rec)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSetCursorInvalid(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD1602)
	latches(t, rec)
	for _, pos := range [][2]int{{0, -1}, {0, 2}, {-1, 0}} {
		if err := lcd.SetCursor(pos[0], pos[1]); !errors.Is(err, i2cbus.ErrInvalidArgument) {
			t.Errorf("SetCursor(%d, %d) = %v", pos[0], pos[1], err)
		}
	}
	if l := latches(t, rec); len(l) != 0 {
		t.Fatalf("unexpected writes % x", l)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		fn   func(lcd *HD44780) error
		want byte
	}{
		{"clear", (*HD44780).Clear, 0x01},
		{"home", (*HD44780).Home, 0x02},
		{"invisible", func(lcd *HD44780) error { return lcd.SetCursorStyle(CursorInvisible) }, 0x0c},
		{"underscore", func(lcd *HD44780) error { return lcd.SetCursorStyle(CursorUnderscore) }, 0x0e},
		{"underscore blink", func(lcd *HD44780) error { return lcd.SetCursorStyle(CursorUnderscoreBlink) }, 0x0f},
		{"blink", func(lcd *HD44780) error { return lcd.SetCursorStyle(CursorBlink) }, 0x0d},
		{"shift left", func(lcd *HD44780) error { return lcd.Shift(Left) }, 0x18},
		{"shift right", func(lcd *HD44780) error { return lcd.Shift(Right) }, 0x1c},
		{"cursor left", func(lcd *HD44780) error { return lcd.MoveCursor(Left) }, 0x10},
		{"cursor right", func(lcd *HD44780) error { return lcd.MoveCursor(Right) }, 0x14},
		{"entry left", func(lcd *HD44780) error { return lcd.SetEntryMode(Left) }, 0x04},
		{"entry right", func(lcd *HD44780) error { return lcd.SetEntryMode(Right) }, 0x06},
		{"autoscroll", func(lcd *HD44780) error { return lcd.AutoScroll(true) }, 0x07},
		{"display off", func(lcd *HD44780) error { return lcd.Display(false) }, 0x08},
		{"underline", func(lcd *HD44780) error { return lcd.Cursor(periphDisplay.CursorUnderline) }, 0x0e},
		{"block", func(lcd *HD44780) error { return lcd.Cursor(periphDisplay.CursorBlock) }, 0x0d},
		{"cursor off", func(lcd *HD44780) error { return lcd.Cursor(periphDisplay.CursorOff) }, 0x0c},
		{"forward", func(lcd *HD44780) error { return lcd.Move(periphDisplay.Forward) }, 0x14},
		{"backward", func(lcd *HD44780) error { return lcd.Move(periphDisplay.Backward) }, 0x10},
		{"move to", func(lcd *HD44780) error { return lcd.MoveTo(2, 3) }, 0xc2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &i2ctest.Record{}
			lcd, _ := newLCD(t, rec, LCD1602)
			latches(t, rec)
			if err := tc.fn(lcd); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]byte{tc.want}, decode(t, latches(t, rec))); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClearDelay(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, s := newLCD(t, rec, LCD1602)
	s.reset()
	if err := lcd.Clear(); err != nil {
		t.Fatal(err)
	}
	if got := s.counts()[DelayClear]; got != 1 {
		t.Fatalf("clear delay %d times", got)
	}
	s.reset()
	if err := lcd.Shift(Left); err != nil {
		t.Fatal(err)
	}
	if got := s.counts()[DelayClear]; got != 0 {
		t.Fatalf("shift slept the clear delay %d times", got)
	}
}

func TestCreateChar(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD1602)
	latches(t, rec)
	glyph := [8]byte{0x00, 0x0a, 0x1f, 0x1f, 0x0e, 0x04, 0x00, 0xff}
	if err := lcd.CreateChar(1, glyph); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x48, 0x00, 0x0a, 0x1f, 0x1f, 0x0e, 0x04, 0x00, 0x1f}
	if diff := cmp.Diff(want, decode(t, latches(t, rec))); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidArguments(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD1602)
	latches(t, rec)
	for name, err := range map[string]error{
		"style":      lcd.SetCursorStyle(CursorBlink + 1),
		"shift":      lcd.Shift(Right + 1),
		"move":       lcd.MoveCursor(-1),
		"entry":      lcd.SetEntryMode(Right + 1),
		"char slot":  lcd.CreateChar(8, [8]byte{}),
		"char slot2": lcd.CreateChar(-1, [8]byte{}),
	} {
		if !errors.Is(err, i2cbus.ErrInvalidArgument) {
			t.Errorf("%s: got %v", name, err)
		}
	}
	if err := lcd.Move(periphDisplay.Up); !errors.Is(err, periphDisplay.ErrNotImplemented) {
		t.Errorf("Move(Up) = %v", err)
	}
	if err := lcd.Cursor(periphDisplay.CursorBlink + 1); err == nil {
		t.Error("Cursor() with invalid mode succeeded")
	}
	for _, pos := range [][2]int{{0, 1}, {1, 0}, {3, 1}, {2, 17}} {
		if err := lcd.MoveTo(pos[0], pos[1]); err == nil {
			t.Errorf("MoveTo(%d, %d) succeeded", pos[0], pos[1])
		}
	}
	if l := latches(t, rec); len(l) != 0 {
		t.Fatalf("unexpected writes % x", l)
	}
	if _, err := NewPCF857xBackpack(newRegistry(t, rec), 0, testAddr, &Opts{Family: LCD2004 + 1}); !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Fatalf("unknown family: %v", err)
	}
}

// flakyBus fails every transaction once armed and after ok more successes.
type flakyBus struct {
	mu    sync.Mutex
	armed bool
	ok    int
}

func (b *flakyBus) String() string { return "flaky" }

func (b *flakyBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.armed {
		return nil
	}
	if b.ok > 0 {
		b.ok--
		return nil
	}
	return errors.New("ESP_FAIL")
}

func (b *flakyBus) SetSpeed(f physic.Frequency) error { return nil }

func (b *flakyBus) arm(ok int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.armed, b.ok = true, ok
}

func (b *flakyBus) disarm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.armed = false
}

func TestWriteAborts(t *testing.T) {
	fb := &flakyBus{}
	rec := &i2ctest.Record{Bus: fb}
	lcd, _ := newLCD(t, rec, LCD1602)
	latches(t, rec)
	fb.arm(7)
	n, err := lcd.WriteString("Hello")
	if !errors.Is(err, i2cbus.ErrFailure) {
		t.Fatalf("got %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d", n)
	}
	if got := len(latches(t, rec)); got != 7 {
		t.Fatalf("%d latches written", got)
	}
	fb.disarm()
	if err := lcd.Clear(); err != nil {
		t.Fatalf("display lock not released: %v", err)
	}
}

func TestInitAborts(t *testing.T) {
	fb := &flakyBus{}
	fb.arm(4)
	rec := &i2ctest.Record{Bus: fb}
	reg := newRegistry(t, rec)
	lcd, err := NewPCF857xBackpack(reg, 0, testAddr, &Opts{Sleep: func(time.Duration) {}})
	if !errors.Is(err, i2cbus.ErrFailure) || lcd != nil {
		t.Fatalf("got %v, %v", lcd, err)
	}
	if got := len(latches(t, rec)); got != 4 {
		t.Fatalf("%d latches written before abort", got)
	}
	// The port is still usable by other devices.
	fb.disarm()
	if _, err := NewPCF857xBackpack(reg, 0, 0x3f, &Opts{Sleep: func(time.Duration) {}}); err != nil {
		t.Fatal(err)
	}
}

func TestBusyTimeout(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD1602)
	latches(t, rec)
	if err := lcd.bus.Acquire(); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := lcd.Clear(); !errors.Is(err, i2cbus.ErrTimeout) {
		t.Fatalf("got %v", err)
	}
	if d := time.Since(start); d < 40*time.Millisecond {
		t.Fatalf("returned after %s", d)
	}
	if err := lcd.Delete(); !errors.Is(err, i2cbus.ErrTimeout) {
		t.Fatalf("Delete() while busy = %v", err)
	}
	lcd.bus.Release()
	if err := lcd.Clear(); err != nil {
		t.Fatal(err)
	}
	if got := decode(t, latches(t, rec)); !cmp.Equal(got, []byte{cmdClear}) {
		t.Fatalf("got % x", got)
	}
}

func TestDelete(t *testing.T) {
	rec := &i2ctest.Record{}
	lcd, _ := newLCD(t, rec, LCD1602)
	if err := lcd.Delete(); err != nil {
		t.Fatal(err)
	}
	if err := lcd.Clear(); !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Fatalf("Clear() after Delete() = %v", err)
	}
	if err := lcd.Delete(); !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Fatalf("second Delete() = %v", err)
	}
}

func TestNilDisplay(t *testing.T) {
	var lcd *HD44780
	if err := lcd.Clear(); !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Error(err)
	}
	if n, err := lcd.WriteString("x"); n != 0 || !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Error(n, err)
	}
	if err := lcd.SetCursor(0, 0); !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Error(err)
	}
	if err := lcd.SetBacklight(true); !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Error(err)
	}
	if err := lcd.Delete(); !errors.Is(err, i2cbus.ErrInvalidArgument) {
		t.Error(err)
	}
}

func TestSimulated(t *testing.T) {
	sim := lcdsim.NewBus("sim")
	screen := sim.Attach(testAddr, 4, 20)
	lcd, _ := newLCD(t, sim, LCD2004)
	if _, err := lcd.WriteString("Hello"); err != nil {
		t.Fatal(err)
	}
	if err := lcd.SetCursor(25, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := lcd.WriteString("!"); err != nil {
		t.Fatal(err)
	}
	if err := lcd.SetCursorStyle(CursorUnderscore); err != nil {
		t.Fatal(err)
	}
	want := lcdsim.State{
		Lines: []string{
			"Hello               ",
			"                    ",
			"                    ",
			"                   !",
		},
		Backlight: true,
		On:        true,
		Cursor:    true,
	}
	if diff := cmp.Diff(want, screen.State()); diff != "" {
		t.Fatalf("State() mismatch (-want +got):\n%s", diff)
	}
	if err := lcd.Halt(); err != nil {
		t.Fatal(err)
	}
	if s := screen.State(); s.On || s.Backlight || s.Lines[0] != "                    " {
		t.Fatalf("after Halt(): %+v", s)
	}
}

func TestConcurrentWriters(t *testing.T) {
	sim := lcdsim.NewBus("sim")
	screen := sim.Attach(testAddr, 2, 16)
	lcd, _ := newLCD(t, sim, LCD1602)
	var wg sync.WaitGroup
	for _, s := range []string{"AAAA", "BBBB"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lcd.WriteString(s); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	got := screen.Lines()[0]
	if got != "AAAABBBB        " && got != "BBBBAAAA        " {
		t.Fatalf("interleaved output %q", got)
	}
}

func TestTwoDisplaysOnePort(t *testing.T) {
	sim := lcdsim.NewBus("sim")
	small := sim.Attach(0x27, 2, 16)
	large := sim.Attach(0x3f, 4, 20)
	reg := newRegistry(t, sim)
	nop := func(time.Duration) {}
	lcd1, err := NewPCF857xBackpack(reg, 0, 0x27, &Opts{Family: LCD1602, Sleep: nop})
	if err != nil {
		t.Fatal(err)
	}
	lcd2, err := NewPCF857xBackpack(reg, 0, 0x3f, &Opts{Family: LCD2004, Sleep: nop})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for row, lcd := range []*HD44780{lcd1, lcd2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				if err := lcd.SetCursor(0, row); err != nil {
					t.Error(err)
					return
				}
				if _, err := lcd.WriteString(lcd.Family().String()); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if got := small.Lines()[0]; got != "LCD1602         " {
		t.Errorf("small display: %q", got)
	}
	if got := large.Lines()[1]; got != "LCD2004             " {
		t.Errorf("large display: %q", got)
	}
}

func TestInterface(t *testing.T) {
	sim := lcdsim.NewBus("sim")
	screen := sim.Attach(testAddr, 2, 16)
	lcd, _ := newLCD(t, sim, LCD1602)
	errs := displaytest.TestTextDisplay(lcd, false)
	for _, err := range errs {
		if !errors.Is(err, periphDisplay.ErrNotImplemented) {
			t.Error(err)
		}
	}
	if got := screen.Lines()[0]; got != "Set dev on      " {
		t.Fatalf("line 0 = %q", got)
	}
}
