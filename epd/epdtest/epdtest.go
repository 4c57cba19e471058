// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package epdtest is meant to be used to test drivers built on package epd.
//
// Controller records every call it receives as a short string, so a test can
// compare the whole conversation with the controller at once.
package epdtest

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// Controller implements epd.ControllerOps and records every operation.
//
// It is safe for concurrent use.
type Controller struct {
	sync.Mutex
	// NotReady is the number of Ready calls returning false before the
	// controller becomes ready. Negative means never.
	NotReady int
	// InitErr is returned by Init.
	InitErr error
	// PowerErr is returned by SetPower. The call is still recorded.
	PowerErr error
	// Channel is returned by DMA when not nil.
	Channel *DMA
	// Regs holds the register values.
	Regs map[epd.Register]uint32
	// Written accumulates the bytes written by PIO.
	Written []byte
	// ReadData is consumed by ReadPIO.
	ReadData []byte

	ops []string
}

// Ops returns a copy of the operations recorded so far.
func (c *Controller) Ops() []string {
	c.Lock()
	defer c.Unlock()
	return append([]string(nil), c.ops...)
}

// Reset forgets the operations and bytes recorded so far.
func (c *Controller) Reset() {
	c.Lock()
	defer c.Unlock()
	c.ops = nil
	c.Written = nil
}

func (c *Controller) record(format string, a ...interface{}) {
	c.ops = append(c.ops, fmt.Sprintf(format, a...))
}

func (c *Controller) String() string {
	return "epdtest.Controller"
}

// Init implements epd.ControllerOps.
func (c *Controller) Init(info *epd.DisplayInfo) error {
	c.Lock()
	defer c.Unlock()
	c.record("init %dx%d %dbpp", info.Width, info.Height, info.BPP)
	return c.InitErr
}

// Ready implements epd.ControllerOps.
func (c *Controller) Ready() (bool, error) {
	c.Lock()
	defer c.Unlock()
	if c.NotReady < 0 {
		return false, nil
	}
	if c.NotReady > 0 {
		c.NotReady--
		return false, nil
	}
	return true, nil
}

// WriteRegister implements epd.ControllerOps.
func (c *Controller) WriteRegister(r epd.Register, v uint32) error {
	c.Lock()
	defer c.Unlock()
	if c.Regs == nil {
		c.Regs = map[epd.Register]uint32{}
	}
	c.Regs[r] = v
	c.record("write %s=%#x", r, v)
	return nil
}

// ReadRegister implements epd.ControllerOps.
func (c *Controller) ReadRegister(r epd.Register) (uint32, error) {
	c.Lock()
	defer c.Unlock()
	c.record("read %s", r)
	return c.Regs[r], nil
}

// WritePIO implements epd.ControllerOps.
func (c *Controller) WritePIO(p []byte) error {
	c.Lock()
	defer c.Unlock()
	c.Written = append(c.Written, p...)
	c.record("pio write %d", len(p))
	return nil
}

// ReadPIO implements epd.ControllerOps.
func (c *Controller) ReadPIO(p []byte) error {
	c.Lock()
	defer c.Unlock()
	if len(c.ReadData) < len(p) {
		return errors.New("epdtest: read data exhausted")
	}
	copy(p, c.ReadData)
	c.ReadData = c.ReadData[len(p):]
	c.record("pio read %d", len(p))
	return nil
}

// DMA implements epd.ControllerOps.
func (c *Controller) DMA() epd.DMAChannel {
	if c.Channel == nil {
		return nil
	}
	return c.Channel
}

// BeginArea implements epd.ControllerOps.
func (c *Controller) BeginArea(dir epd.Direction, r image.Rectangle) error {
	c.Lock()
	defer c.Unlock()
	c.record("begin %s %v", dir, r)
	return nil
}

// EndArea implements epd.ControllerOps.
func (c *Controller) EndArea() error {
	c.Lock()
	defer c.Unlock()
	c.record("end")
	return nil
}

// Refresh implements epd.ControllerOps.
func (c *Controller) Refresh(r image.Rectangle, e epd.Effect) error {
	c.Lock()
	defer c.Unlock()
	c.record("refresh %s %v", e, r)
	return nil
}

// SetPower implements epd.ControllerOps.
func (c *Controller) SetPower(l epd.PowerLevel) error {
	c.Lock()
	defer c.Unlock()
	c.record("power %s", l)
	return c.PowerErr
}

// WithDMA is a Controller providing a framebuffer reachable by its DMA
// channel at PhysAddr.
type WithDMA struct {
	*Controller
	PhysAddr uint64
}

// Framebuffer implements epd.FramebufferProvider.
func (w *WithDMA) Framebuffer(size int) ([]byte, uint64, error) {
	return make([]byte, size), w.PhysAddr, nil
}

// DMA implements epd.DMAChannel.
type DMA struct {
	sync.Mutex
	// Unit is the transfer granularity in bytes.
	Unit int
	// Hang makes transfers never complete.
	Hang bool
	// Transfers lists the requests started.
	Transfers []epd.TransferRequest
	// Data accumulates the bytes written by DMA.
	Data []byte
	// Disabled counts Disable calls.
	Disabled int
}

// MinUnit implements epd.DMAChannel.
func (d *DMA) MinUnit() int {
	return d.Unit
}

// Start implements epd.DMAChannel. Completion is signaled from another
// goroutine, like an interrupt would.
func (d *DMA) Start(req epd.TransferRequest, buf []byte, done func()) error {
	d.Lock()
	defer d.Unlock()
	if len(buf) != req.Size || req.Size%d.Unit != 0 {
		return fmt.Errorf("epdtest: bad dma request %+v for %d bytes", req, len(buf))
	}
	d.Transfers = append(d.Transfers, req)
	if req.Dir == epd.Write {
		d.Data = append(d.Data, buf...)
	}
	if !d.Hang {
		go done()
	}
	return nil
}

// Disable implements epd.DMAChannel.
func (d *DMA) Disable() error {
	d.Lock()
	defer d.Unlock()
	d.Disabled++
	return nil
}

var _ epd.ControllerOps = &Controller{}
var _ epd.FramebufferProvider = &WithDMA{}
var _ epd.DMAChannel = &DMA{}
