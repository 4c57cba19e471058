// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// wordSize is the largest transfer sent as a single transaction.
const wordSize = 4

// Stats are counters of the work done by a Dev since it was created.
type Stats struct {
	PIOBytes     uint64
	DMABytes     uint64
	DMATransfers uint64
	DMATimeouts  uint64
	Refreshes    uint64
	Busy         uint64
	Dropped      uint64
}

type counters struct {
	pioBytes     atomic.Uint64
	dmaBytes     atomic.Uint64
	dmaTransfers atomic.Uint64
	dmaTimeouts  atomic.Uint64
	refreshes    atomic.Uint64
	busy         atomic.Uint64
	dropped      atomic.Uint64
}

// engine sequences transactions against the controller.
type engine struct {
	ops     ControllerOps
	dma     DMAChannel
	dmaBase uint64

	chunk        int
	readyTimeout time.Duration
	readyPoll    time.Duration
	dmaTimeout   time.Duration

	log   *slog.Logger
	stats *counters
}

func (e *engine) waitReady(ctx context.Context) error {
	if err := pollUntil(ctx, e.readyTimeout, e.readyPoll, e.ops.Ready); err != nil {
		return fmt.Errorf("epd: waiting for %s: %w", e.ops, err)
	}
	return nil
}

func (e *engine) writeRegister(ctx context.Context, r Register, v uint32) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}
	return e.ops.WriteRegister(r, v)
}

func (e *engine) readRegister(ctx context.Context, r Register) (uint32, error) {
	if err := e.waitReady(ctx); err != nil {
		return 0, err
	}
	return e.ops.ReadRegister(r)
}

func (e *engine) beginArea(ctx context.Context, dir Direction, area image.Rectangle) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}
	return e.ops.BeginArea(dir, area)
}

func (e *engine) endArea(ctx context.Context) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}
	return e.ops.EndArea()
}

func (e *engine) refresh(ctx context.Context, area image.Rectangle, effect Effect) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}
	if err := e.ops.Refresh(area, effect); err != nil {
		return err
	}
	e.stats.refreshes.Add(1)
	return nil
}

func (e *engine) setPower(ctx context.Context, l PowerLevel) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}
	return e.ops.SetPower(l)
}

// transfer moves buf to or from the controller.
//
// When dmaOK is set buf is the framebuffer span starting at offset off and
// the DMA channel is used for the largest multiple of its unit; the rest
// goes through PIO, continuing where DMA stopped.
func (e *engine) transfer(ctx context.Context, dir Direction, buf []byte, off int, dmaOK bool) error {
	n := len(buf)
	if n == 0 {
		return nil
	}
	if n <= wordSize {
		return e.pio(ctx, dir, buf)
	}
	done := 0
	if dmaOK && e.dma != nil {
		unit := e.dma.MinUnit()
		if aligned := n / unit * unit; aligned > 0 {
			req := TransferRequest{
				Dir:      dir,
				Path:     PathDMA,
				Offset:   off,
				Size:     aligned,
				PhysAddr: e.dmaBase + uint64(off),
			}
			if err := e.runDMA(ctx, req, buf[:aligned]); err != nil {
				return err
			}
			done = aligned
		}
	}
	if done == n {
		return nil
	}
	return e.pioChunked(ctx, dir, buf[done:])
}

// pio is a single unchunked transaction.
func (e *engine) pio(ctx context.Context, dir Direction, p []byte) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}
	var err error
	if dir == Read {
		err = e.ops.ReadPIO(p)
	} else {
		err = e.ops.WritePIO(p)
	}
	if err != nil {
		return err
	}
	e.stats.pioBytes.Add(uint64(len(p)))
	return nil
}

// pioChunked moves p a chunk at a time, yielding between chunks so a large
// transfer does not starve other goroutines.
func (e *engine) pioChunked(ctx context.Context, dir Direction, p []byte) error {
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := e.chunk
		if c > len(p) {
			c = len(p)
		}
		if err := e.pio(ctx, dir, p[:c]); err != nil {
			return err
		}
		p = p[c:]
		runtime.Gosched()
	}
	return nil
}

// runDMA starts req and waits for the end of frame. A channel that never
// completes is disabled and marked done so the caller can release the gate.
func (e *engine) runDMA(ctx context.Context, req TransferRequest, buf []byte) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	var once sync.Once
	complete := func() { once.Do(func() { close(done) }) }
	if err := e.dma.Start(req, buf, complete); err != nil {
		return fmt.Errorf("epd: dma %s of %d bytes: %w", req.Dir, req.Size, err)
	}
	t := time.NewTimer(e.dmaTimeout)
	defer t.Stop()
	select {
	case <-done:
		e.stats.dmaTransfers.Add(1)
		e.stats.dmaBytes.Add(uint64(req.Size))
		return nil
	case <-t.C:
		e.stats.dmaTimeouts.Add(1)
		e.forceComplete(complete)
		e.log.Warn("dma timed out", "dir", req.Dir, "offset", req.Offset, "size", req.Size, "timeout", e.dmaTimeout)
		return fmt.Errorf("epd: dma %s of %d bytes: %w", req.Dir, req.Size, ErrHardwareTimeout)
	case <-ctx.Done():
		e.forceComplete(complete)
		return ctx.Err()
	}
}

func (e *engine) forceComplete(complete func()) {
	if err := e.dma.Disable(); err != nil {
		e.log.Error("dma disable failed", "err", err)
	}
	complete()
}
