// Copyright 2022 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1675

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	jujuerrors "github.com/juju/errors"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/GermanBionicSystems/epdhal/epd"
)

type pins struct {
	dc, cs, rst, busy *gpiotest.Pin
}

func newPins() *pins {
	return &pins{
		dc:   &gpiotest.Pin{N: "DC"},
		cs:   &gpiotest.Pin{N: "CS"},
		rst:  &gpiotest.Pin{N: "RST"},
		busy: &gpiotest.Pin{N: "BUSY"},
	}
}

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		name        string
		opts        Opts
		wantString  string
		wantDisplay epd.Opts
	}{
		{
			name:        "EPD2in13v2",
			opts:        EPD2in13v2,
			wantString:  "ssd1675.Dev{playback, DC(0), Width: 122, Height: 250}",
			wantDisplay: epd.Opts{Width: 128, Height: 250, BPP: 1, Align: 1},
		},
		{
			name:        "EPD2in13v4",
			opts:        EPD2in13v4,
			wantString:  "ssd1675.Dev{playback, DC(0), Width: 122, Height: 250}",
			wantDisplay: epd.Opts{Width: 128, Height: 250, BPP: 1, Align: 1},
		},
		{
			name:        "aligned",
			opts:        Opts{Width: 16, Height: 2},
			wantString:  "ssd1675.Dev{playback, DC(0), Width: 16, Height: 2}",
			wantDisplay: epd.Opts{Width: 16, Height: 2, BPP: 1, Align: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newPins()
			dev, err := New(&spitest.Playback{}, p.dc, p.cs, p.rst, p.busy, &tc.opts)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}

			if diff := cmp.Diff(dev.String(), tc.wantString); diff != "" {
				t.Errorf("String() difference (-got +want):\n%s", diff)
			}

			if diff := cmp.Diff(dev.opts.Display(), tc.wantDisplay); diff != "" {
				t.Errorf("Display() difference (-got +want):\n%s", diff)
			}

			if dev.opts.BusyTimeout <= 0 {
				t.Errorf("BusyTimeout = %s", dev.opts.BusyTimeout)
			}
		})
	}
}

func TestNewInvalid(t *testing.T) {
	for _, opts := range []Opts{
		{},
		{Width: 8},
		{Width: 2049, Height: 8},
	} {
		p := newPins()
		if _, err := New(&spitest.Playback{}, p.dc, p.cs, p.rst, p.busy, &opts); !jujuerrors.Is(err, jujuerrors.NotValid) {
			t.Errorf("New(%dx%d) = %v, want a not valid error", opts.Width, opts.Height, err)
		}
	}
}

func TestInitRejects(t *testing.T) {
	opts := Opts{Width: 16, Height: 2}
	p := newPins()

	dev, err := New(&spitest.Playback{}, p.dc, p.cs, p.rst, nil, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Init(&epd.DisplayInfo{Width: 16, Height: 2, BPP: 1}); !jujuerrors.Is(err, jujuerrors.NotValid) {
		t.Errorf("Init() without busy pin = %v", err)
	}

	// Rejected before any I/O: the playback is empty.
	dev, err = New(&spitest.Playback{}, p.dc, p.cs, p.rst, p.busy, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Init(&epd.DisplayInfo{Width: 16, Height: 2, BPP: 2}); !jujuerrors.Is(err, jujuerrors.NotSupported) {
		t.Errorf("Init(2bpp) = %v", err)
	}
	if err := dev.Init(&epd.DisplayInfo{Width: 24, Height: 2, BPP: 1}); !jujuerrors.Is(err, jujuerrors.NotValid) {
		t.Errorf("Init(24x2) = %v", err)
	}
}

func TestBusyTimeout(t *testing.T) {
	p := newPins()
	p.busy.L = gpio.High
	dev, err := New(&spitest.Record{}, p.dc, p.cs, p.rst, p.busy, &Opts{Width: 16, Height: 2, BusyTimeout: 20 * busyPoll})
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := dev.Ready(); ok {
		t.Error("Ready() = true while busy is high")
	}
	err = dev.Init(&epd.DisplayInfo{Width: 16, Height: 2, BPP: 1})
	if !errors.Is(err, epd.ErrHardwareTimeout) {
		t.Errorf("Init() = %v, want %v", err, epd.ErrHardwareTimeout)
	}
}

func TestUnsupported(t *testing.T) {
	p := newPins()
	dev, err := New(&spitest.Record{}, p.dc, p.cs, p.rst, p.busy, &Opts{Width: 16, Height: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.ReadRegister(epd.RegStatus); !jujuerrors.Is(err, jujuerrors.NotSupported) {
		t.Errorf("ReadRegister() = %v", err)
	}
	if err := dev.WriteRegister(epd.RegRevision, 1); !jujuerrors.Is(err, jujuerrors.NotSupported) {
		t.Errorf("WriteRegister(revision) = %v", err)
	}
	if err := dev.BeginArea(epd.Read, image.Rect(0, 0, 8, 1)); !jujuerrors.Is(err, jujuerrors.NotSupported) {
		t.Errorf("BeginArea(read) = %v", err)
	}
	if err := dev.BeginArea(epd.Write, image.Rect(3, 0, 8, 1)); !errors.Is(err, epd.ErrBadArgument) {
		t.Errorf("BeginArea(3..8) = %v", err)
	}
	if err := dev.WritePIO([]byte{1}); !errors.Is(err, epd.ErrBadArgument) {
		t.Errorf("WritePIO() outside an area = %v", err)
	}
	if dev.DMA() != nil {
		t.Error("DMA() is not nil")
	}
}

func TestRegisters(t *testing.T) {
	rec := &spitest.Record{}
	p := newPins()
	dev, err := New(rec, p.dc, p.cs, p.rst, p.busy, &Opts{Width: 16, Height: 2})
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		r epd.Register
		v uint32
	}{
		{epd.RegVCOM, 0x26},
		{epd.RegBorder, 0x05},
		{epd.RegTemperature, 0x190},
	} {
		if err := dev.WriteRegister(tc.r, tc.v); err != nil {
			t.Errorf("WriteRegister(%s) = %v", tc.r, err)
		}
	}
	want := []conntest.IO{
		{W: []byte{writeVcomRegister}}, {W: []byte{0x26}},
		{W: []byte{borderWaveformControl}}, {W: []byte{0x05}},
		{W: []byte{tempSensorRegWrite}}, {W: []byte{0x19, 0x00}},
	}
	if diff := cmp.Diff(rec.Ops, want); diff != "" {
		t.Errorf("Ops difference (-got +want):\n%s", diff)
	}
}

func TestDisplay(t *testing.T) {
	rec := &spitest.Record{}
	p := newPins()
	dev, err := New(rec, p.dc, p.cs, p.rst, p.busy, &Opts{Width: 16, Height: 2})
	if err != nil {
		t.Fatal(err)
	}
	o := dev.opts.Display()
	o.SuspendAfter = -1
	d, err := epd.New(dev, &o)
	if err != nil {
		t.Fatalf("epd.New() failed: %v", err)
	}
	defer d.Close()
	if p.rst.Read() != gpio.High {
		t.Error("controller left in reset")
	}
	rec.Ops = nil

	copy(d.Framebuffer(), []byte{0xF0, 0x0F, 0x00, 0x00})
	if err := d.UpdateArea(context.Background(), &epd.UpdateArea{Rect: image.Rect(0, 0, 16, 2), Effect: epd.EffectPartial}); err != nil {
		t.Fatal(err)
	}

	area := []conntest.IO{
		{W: []byte{dataEntryModeSetting}}, {W: []byte{0x03}},
		{W: []byte{setRAMXAddressStartEndPosition}}, {W: []byte{0, 1}},
		{W: []byte{setRAMYAddressStartEndPosition}}, {W: []byte{0, 0, 1, 0}},
		{W: []byte{setRAMXAddressCounter}}, {W: []byte{0}},
		{W: []byte{setRAMYAddressCounter}}, {W: []byte{0, 0}},
	}
	pixels := conntest.IO{W: []byte{0x0F, 0xF0, 0xFF, 0xFF}}
	var want []conntest.IO
	// Power on.
	want = append(want, conntest.IO{W: []byte{displayUpdateControl2}}, conntest.IO{W: []byte{0xC0}}, conntest.IO{W: []byte{masterActivation}})
	want = append(want, area...)
	want = append(want, conntest.IO{W: []byte{writeRAMBW}}, pixels)
	want = append(want, conntest.IO{W: []byte{displayUpdateControl2}}, conntest.IO{W: []byte{0xFF}}, conntest.IO{W: []byte{masterActivation}})
	want = append(want, area...)
	want = append(want, conntest.IO{W: []byte{writeRAMRed}}, pixels)
	if diff := cmp.Diff(rec.Ops, want); diff != "" {
		t.Errorf("Ops difference (-got +want):\n%s", diff)
	}

	// The red RAM is only rewritten once.
	rec.Ops = nil
	if err := d.UpdateDisplay(context.Background(), epd.EffectNone); err != nil {
		t.Fatal(err)
	}
	if len(dev.dirty) != 1 {
		t.Errorf("%d areas waiting for the red RAM, want 1", len(dev.dirty))
	}

	rec.Ops = nil
	if err := d.SetPowerLevel(epd.PowerSleep); err != nil {
		t.Fatal(err)
	}
	want = []conntest.IO{{W: []byte{deepSleepMode}}, {W: []byte{0x01}}}
	if diff := cmp.Diff(rec.Ops, want); diff != "" {
		t.Errorf("Ops difference (-got +want):\n%s", diff)
	}
	if !dev.asleep {
		t.Error("controller not asleep")
	}

	// Waking up needs a reset and the whole init sequence.
	rec.Ops = nil
	if err := d.SetPowerLevel(epd.PowerOn); err != nil {
		t.Fatal(err)
	}
	if dev.asleep || len(rec.Ops) == 0 || rec.Ops[0].W[0] != swReset {
		t.Errorf("wake up sent %v", rec.Ops)
	}
}
