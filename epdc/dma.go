// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epdc

import (
	"sync"
	"time"

	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// edgePoll is how often the interrupt goroutine checks for Disable.
const edgePoll = 10 * time.Millisecond

// channel is the bus master DMA engine of the host interface.
type channel struct {
	regs Bus
	irq  gpio.PinIn
	unit int

	mu   sync.Mutex
	stop chan struct{}
}

func (c *channel) MinUnit() int {
	return c.unit
}

// Start programs the engine with req and returns. A goroutine waits for the
// end of frame interrupt and calls done. buf is not used; the engine reads
// the memory at req.PhysAddr itself.
func (c *channel) Start(req epd.TransferRequest, buf []byte, done func()) error {
	if req.Size <= 0 || req.Size%c.unit != 0 {
		return errors.NotValidf("DMA transfer of %d bytes with a %d bytes unit", req.Size, c.unit)
	}
	if req.PhysAddr%4 != 0 {
		return errors.NotValidf("DMA address %#x", req.PhysAddr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return errors.AlreadyExistsf("DMA transfer in flight")
	}
	stop := make(chan struct{})
	c.stop = stop

	ctl := dmaEnable | dmaIRQ
	if req.Dir == epd.Read {
		ctl |= dmaRead
	}
	c.regs.Write32(regIRQAck, statusFrameDone|statusDMAError)
	c.regs.Write32(regDMAAddr, uint32(req.PhysAddr))
	c.regs.Write32(regDMAAddrH, uint32(req.PhysAddr>>32))
	c.regs.Write32(regDMALen, uint32(req.Size))
	c.regs.Write32(regDMACtl, ctl)

	go c.wait(stop, done)
	return nil
}

// wait runs until the frame completes or the channel is disabled.
func (c *channel) wait(stop chan struct{}, done func()) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !c.irq.WaitForEdge(edgePoll) {
			continue
		}
		if c.regs.Read32(regStatus)&statusFrameDone == 0 {
			continue
		}
		c.regs.Write32(regIRQAck, statusFrameDone)
		c.finish(stop)
		done()
		return
	}
}

// finish marks the transfer over if stop is still the current one.
func (c *channel) finish(stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == stop {
		c.stop = nil
		c.regs.Write32(regDMACtl, 0)
	}
}

// Disable stops the engine and the interrupt goroutine.
func (c *channel) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs.Write32(regDMACtl, 0)
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	return nil
}
