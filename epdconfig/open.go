// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epdconfig

import (
	"io"

	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/GermanBionicSystems/epdhal/epd"
	"github.com/GermanBionicSystems/epdhal/epd/epdtest"
	"github.com/GermanBionicSystems/epdhal/epdc"
	"github.com/GermanBionicSystems/epdhal/ssd1675"
)

// Open opens the backend hardware. The host drivers must be initialized
// already. The returned io.Closer releases the buses once the epd.Dev is
// closed.
func (c *Config) Open() (epd.ControllerOps, io.Closer, error) {
	switch c.Backend.Kind {
	case KindSSD1675:
		return c.Backend.SSD1675.open()
	case KindEPDC:
		return c.Backend.EPDC.open()
	case KindSim, "":
		ops, err := c.Backend.Sim.open()
		return ops, nopCloser{}, err
	default:
		return nil, nil, errors.NotValidf("backend kind %q", c.Backend.Kind)
	}
}

func (s *SSD1675) preset() (*ssd1675.Opts, error) {
	var o ssd1675.Opts
	switch s.Preset {
	case "2in13v2", "":
		o = ssd1675.EPD2in13v2
	case "2in13v4":
		o = ssd1675.EPD2in13v4
	default:
		return nil, errors.NotFoundf("ssd1675 preset %q", s.Preset)
	}
	var err error
	o.BusyTimeout, err = parseDuration(s.BusyTimeout, "busy_timeout")
	return &o, err
}

func (s *SSD1675) open() (epd.ControllerOps, io.Closer, error) {
	opts, err := s.preset()
	if err != nil {
		return nil, nil, err
	}
	hat := s.DC == "" && s.CS == "" && s.Reset == "" && s.Busy == ""
	var dc, cs, rst, busy gpio.PinIO
	if !hat {
		for _, l := range []struct {
			name, key string
			p         *gpio.PinIO
		}{
			{s.DC, "dc", &dc},
			{s.CS, "cs", &cs},
			{s.Reset, "reset", &rst},
			{s.Busy, "busy", &busy},
		} {
			if *l.p, err = pin(l.name, l.key); err != nil {
				return nil, nil, err
			}
		}
	}
	p, err := spireg.Open(s.SPI)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "epdconfig: spi %q", s.SPI)
	}
	var d *ssd1675.Dev
	if hat {
		d, err = ssd1675.NewHat(p, opts)
	} else {
		d, err = ssd1675.New(p, dc, cs, rst, busy, opts)
	}
	if err != nil {
		p.Close()
		return nil, nil, err
	}
	return d, p, nil
}

func (e *EPDC) open() (epd.ControllerOps, io.Closer, error) {
	base, err := parseAddr(e.RegsBase, "regs_base")
	if err != nil {
		return nil, nil, err
	}
	size := e.RegsSize
	if size == 0 {
		size = 4096
	}
	timeout, err := parseDuration(e.ResetTimeout, "reset_timeout")
	if err != nil {
		return nil, nil, err
	}
	opts := epdc.Opts{ResetTimeout: timeout}
	if e.Reset != "" {
		if opts.Reset, err = pin(e.Reset, "reset"); err != nil {
			return nil, nil, err
		}
	}
	if e.IRQ != "" {
		if opts.IRQ, err = pin(e.IRQ, "irq"); err != nil {
			return nil, nil, err
		}
	}
	var fbBase uint64
	if e.FBSize != 0 {
		if fbBase, err = parseAddr(e.FBBase, "fb_base"); err != nil {
			return nil, nil, err
		}
	}

	regs, err := epdc.OpenMem(base, size)
	if err != nil {
		return nil, nil, err
	}
	closers := multiCloser{regs}
	opts.Regs = regs
	if e.FBSize != 0 {
		fb, err := epdc.OpenMem(fbBase, e.FBSize)
		if err != nil {
			closers.Close()
			return nil, nil, err
		}
		closers = append(closers, fb)
		opts.Framebuffer = fb
	}
	d, err := epdc.New(&opts)
	if err != nil {
		closers.Close()
		return nil, nil, err
	}
	return d, closers, nil
}

func (s *Sim) open() (epd.ControllerOps, error) {
	c := &epdtest.Controller{}
	if s.DMAUnit == 0 {
		return c, nil
	}
	if s.DMAUnit < 0 {
		return nil, errors.NotValidf("DMA unit %d", s.DMAUnit)
	}
	c.Channel = &epdtest.DMA{Unit: s.DMAUnit}
	var phys uint64
	if s.PhysAddr != "" {
		var err error
		if phys, err = parseAddr(s.PhysAddr, "phys_addr"); err != nil {
			return nil, err
		}
	}
	return &epdtest.WithDMA{Controller: c, PhysAddr: phys}, nil
}

// pin looks up a pin by name in the gpio registry.
func pin(name, key string) (gpio.PinIO, error) {
	if name == "" {
		return nil, errors.NotValidf("missing %s pin", key)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.NotFoundf("%s pin %q", key, name)
	}
	return p, nil
}

// multiCloser closes in reverse order and returns the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var err error
	for i := len(m) - 1; i >= 0; i-- {
		if err2 := m[i].Close(); err == nil {
			err = err2
		}
	}
	return err
}
