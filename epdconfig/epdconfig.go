// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package epdconfig loads panel profiles written in HCL.
//
// A profile describes the panel geometry, the power tunables and the
// controller backend:
//
//	panel {
//	  width       = 800
//	  height      = 600
//	  bpp         = 4
//	  orientation = "landscape"
//	}
//	power {
//	  suspend_after = "10s"
//	  suspend_level = "blank"
//	}
//	backend {
//	  kind = "epdc"
//	  epdc {
//	    regs_base = "0x20000000"
//	    regs_size = 4096
//	    irq       = "GPIO17"
//	  }
//	}
//
// Durations are strings in time.ParseDuration format. Addresses are strings
// so they can be written in hexadecimal.
package epdconfig

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// Backend kinds.
const (
	KindSSD1675 = "ssd1675"
	KindEPDC    = "epdc"
	KindSim     = "sim"
)

// Config is a whole profile.
type Config struct {
	Panel   Panel   `hcl:"panel"`
	Power   Power   `hcl:"power"`
	Backend Backend `hcl:"backend"`
}

// Panel is the display geometry. Zero values take the epd defaults, or the
// preset geometry with the ssd1675 backend.
type Panel struct {
	Width       int    `hcl:"width"`
	Height      int    `hcl:"height"`
	BPP         int    `hcl:"bpp"`
	Align       int    `hcl:"align"`
	Orientation string `hcl:"orientation"`
	Reboot      string `hcl:"reboot"`
	Misaligned  string `hcl:"misaligned"`
}

// Power holds the power management and timing tunables.
type Power struct {
	SuspendAfter string `hcl:"suspend_after"`
	SuspendLevel string `hcl:"suspend_level"`
	ReadyTimeout string `hcl:"ready_timeout"`
	ReadyPoll    string `hcl:"ready_poll"`
	DMATimeout   string `hcl:"dma_timeout"`
	PIOChunk     int    `hcl:"pio_chunk"`
}

// Backend selects the controller. Only the block named by Kind is used.
type Backend struct {
	Kind    string  `hcl:"kind"`
	SSD1675 SSD1675 `hcl:"ssd1675"`
	EPDC    EPDC    `hcl:"epdc"`
	Sim     Sim     `hcl:"sim"`
}

// SSD1675 describes a small panel on SPI.
//
// When none of the pins is named the Waveshare HAT pinout is used.
type SSD1675 struct {
	// Preset is "2in13v2" or "2in13v4".
	Preset      string `hcl:"preset"`
	SPI         string `hcl:"spi"`
	DC          string `hcl:"dc"`
	CS          string `hcl:"cs"`
	Reset       string `hcl:"reset"`
	Busy        string `hcl:"busy"`
	BusyTimeout string `hcl:"busy_timeout"`
}

// EPDC describes a memory mapped controller.
type EPDC struct {
	RegsBase string `hcl:"regs_base"`
	RegsSize int    `hcl:"regs_size"`
	// FBBase and FBSize describe the carve-out the DMA engine reads. The
	// framebuffer is ordinary memory when FBSize is 0.
	FBBase       string `hcl:"fb_base"`
	FBSize       int    `hcl:"fb_size"`
	IRQ          string `hcl:"irq"`
	Reset        string `hcl:"reset"`
	ResetTimeout string `hcl:"reset_timeout"`
}

// Sim is a controller that only records what it is sent.
type Sim struct {
	// DMAUnit enables a simulated DMA channel with this granularity.
	DMAUnit  int    `hcl:"dma_unit"`
	PhysAddr string `hcl:"phys_addr"`
}

// Parse decodes a profile.
func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := hcl.Unmarshal(b, c); err != nil {
		return nil, errors.Annotate(err, "epdconfig: unmarshal")
	}
	switch c.Backend.Kind {
	case "":
		c.Backend.Kind = KindSim
	case KindSSD1675, KindEPDC, KindSim:
	default:
		return nil, errors.NotValidf("backend kind %q", c.Backend.Kind)
	}
	// Catch bad values early rather than when the hardware is opened.
	if _, err := c.Opts(); err != nil {
		return nil, err
	}
	return c, nil
}

// Read reads and decodes the profile at path.
func Read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "epdconfig: source=%s", path)
	}
	c, err := Parse(b)
	return c, errors.Annotatef(err, "source=%s", path)
}

// Opts returns the epd options described by the profile.
func (c *Config) Opts() (epd.Opts, error) {
	o := epd.Opts{
		Width:    c.Panel.Width,
		Height:   c.Panel.Height,
		BPP:      c.Panel.BPP,
		Align:    c.Panel.Align,
		PIOChunk: c.Power.PIOChunk,
	}
	if c.Backend.Kind == KindSSD1675 && o.Width == 0 && o.Height == 0 {
		p, err := c.Backend.SSD1675.preset()
		if err != nil {
			return o, err
		}
		d := p.Display()
		o.Width, o.Height, o.BPP, o.Align = d.Width, d.Height, d.BPP, d.Align
	}
	enums := []struct {
		s   string
		v   interface{ Set(string) error }
		key string
	}{
		{c.Panel.Orientation, &o.Orientation, "orientation"},
		{c.Panel.Reboot, &o.Reboot, "reboot"},
		{c.Panel.Misaligned, &o.Misaligned, "misaligned"},
		{c.Power.SuspendLevel, &o.SuspendLevel, "suspend_level"},
	}
	for _, e := range enums {
		if e.s == "" {
			continue
		}
		if err := e.v.Set(e.s); err != nil {
			return o, errors.NewNotValid(err, e.key)
		}
	}
	durations := []struct {
		s   string
		d   *time.Duration
		key string
	}{
		{c.Power.SuspendAfter, &o.SuspendAfter, "suspend_after"},
		{c.Power.ReadyTimeout, &o.ReadyTimeout, "ready_timeout"},
		{c.Power.ReadyPoll, &o.ReadyPoll, "ready_poll"},
		{c.Power.DMATimeout, &o.DMATimeout, "dma_timeout"},
	}
	for _, d := range durations {
		var err error
		if *d.d, err = parseDuration(d.s, d.key); err != nil {
			return o, err
		}
	}
	if o.Width < 0 || o.Height < 0 || o.PIOChunk < 0 {
		return o, errors.NotValidf("panel %dx%d with %d bytes PIO chunks", o.Width, o.Height, o.PIOChunk)
	}
	return o, nil
}

func parseDuration(s, key string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.NewNotValid(err, key)
	}
	return d, nil
}

func parseAddr(s, key string) (uint64, error) {
	if s == "" {
		return 0, errors.NotValidf("missing %s", key)
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.NewNotValid(err, key)
	}
	return v, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

var _ io.Closer = nopCloser{}
