// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GermanBionicSystems/epdhal/fbmap"
)

// Opts defines the panel geometry and the driver tunables. Zero values are
// replaced by defaults.
type Opts struct {
	// Panel size in pixels. Width must be a multiple of Align*8/BPP.
	Width  int
	Height int
	// BPP is 1, 2, 4 or 8; defaults to 1.
	BPP int
	// Align is the byte alignment unit of update rectangles; defaults to 1.
	Align int

	Orientation Orientation
	Reboot      RebootBehavior
	Misaligned  AlignPolicy

	// SuspendAfter is the idle time after which the panel moves to
	// SuspendLevel. Defaults to 5s; negative disables auto suspend.
	SuspendAfter time.Duration
	// SuspendLevel is PowerStandby (the default) or PowerBlank.
	SuspendLevel PowerLevel

	// ReadyTimeout bounds each wait for the ready line; defaults to 2s.
	ReadyTimeout time.Duration
	// ReadyPoll is the interval between ready line reads; defaults to 1ms.
	ReadyPoll time.Duration
	// DMATimeout bounds each wait for a DMA completion; defaults to 1s.
	DMATimeout time.Duration
	// PIOChunk is the number of bytes moved between yields; defaults to 512.
	PIOChunk int
	// NeedsDMA decides whether a contiguous update of area is worth a DMA
	// transfer. Defaults to areas covering at least half the panel.
	NeedsDMA func(info *DisplayInfo, area image.Rectangle) bool

	// Logger defaults to discarding everything.
	Logger *slog.Logger
}

// Dev is an e-paper display driven through a ControllerOps.
type Dev struct {
	ops  ControllerOps
	opts Opts
	log  *slog.Logger

	infoMu sync.RWMutex
	info   DisplayInfo

	pages   *fbmap.Pages
	fb      []byte
	scratch []byte
	mirror  *mirror
	eng     *engine
	gate    *gate
	power   power
	reboot  atomic.Int32

	hookMu sync.RWMutex
	hook   Hook

	stats counters
}

func defaultNeedsDMA(info *DisplayInfo, area image.Rectangle) bool {
	return 2*area.Dx()*area.Dy() >= info.Width*info.Height
}

func (o *Opts) setDefaults() {
	if o.BPP == 0 {
		o.BPP = 1
	}
	if o.Align == 0 {
		o.Align = 1
	}
	if o.SuspendAfter == 0 {
		o.SuspendAfter = 5 * time.Second
	}
	if o.SuspendLevel == PowerInit {
		o.SuspendLevel = PowerStandby
	}
	if o.ReadyTimeout == 0 {
		o.ReadyTimeout = 2 * time.Second
	}
	if o.ReadyPoll == 0 {
		o.ReadyPoll = time.Millisecond
	}
	if o.DMATimeout == 0 {
		o.DMATimeout = time.Second
	}
	if o.PIOChunk == 0 {
		o.PIOChunk = 512
	}
	if o.NeedsDMA == nil {
		o.NeedsDMA = defaultNeedsDMA
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

func (o *Opts) validate() error {
	switch o.BPP {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("epd: unsupported depth %dbpp", o.BPP)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("epd: invalid size %dx%d", o.Width, o.Height)
	}
	if o.Align < 0 {
		return fmt.Errorf("epd: invalid alignment %d", o.Align)
	}
	if u := o.Align * 8 / o.BPP; o.Width%u != 0 {
		return fmt.Errorf("epd: width %d is not a multiple of the %d pixel alignment unit", o.Width, u)
	}
	if !o.Orientation.valid() || !o.Reboot.valid() {
		return fmt.Errorf("epd: invalid orientation %s or reboot behavior %s", o.Orientation, o.Reboot)
	}
	if o.SuspendLevel != PowerStandby && o.SuspendLevel != PowerBlank {
		return fmt.Errorf("epd: cannot suspend to %s", o.SuspendLevel)
	}
	if o.PIOChunk < 0 {
		return fmt.Errorf("epd: invalid PIO chunk %d", o.PIOChunk)
	}
	return nil
}

// New returns a Dev driving ops.
//
// The controller is initialized right away; a missing hardware capability
// is reported here and no Dev is returned. The panel is powered on by the
// first operation.
func New(ops ControllerOps, opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, errors.New("epd: missing options")
	}
	o := *opts
	o.setDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}
	info := DisplayInfo{
		Width:       o.Width,
		Height:      o.Height,
		BPP:         o.BPP,
		Align:       o.Align,
		Size:        frameSize(o.Width, o.Height, o.BPP, o.Align),
		Orientation: o.Orientation,
	}

	var pages *fbmap.Pages
	if fp, ok := ops.(FramebufferProvider); ok {
		mem, addr, err := fp.Framebuffer(info.Size)
		if err != nil {
			return nil, fmt.Errorf("epd: framebuffer from %s: %w", ops, err)
		}
		if pages, err = fbmap.Wrap(mem); err != nil {
			return nil, fmt.Errorf("epd: %w", err)
		}
		info.DMA = &DMARegion{PhysAddr: addr, Size: info.Size}
	} else {
		var err error
		if pages, err = fbmap.New(info.Size); err != nil {
			return nil, fmt.Errorf("epd: %w", err)
		}
	}
	if err := ops.Init(&info); err != nil {
		_ = pages.Close()
		return nil, fmt.Errorf("epd: init %s: %w", ops, err)
	}
	// The framebuffer is only advertised as a DMA region when a channel can
	// reach it.
	var ch DMAChannel
	if info.DMA != nil {
		if ch = ops.DMA(); ch == nil || ch.MinUnit() <= 0 {
			ch = nil
			info.DMA = nil
		}
	}

	d := &Dev{
		ops:     ops,
		opts:    o,
		log:     o.Logger,
		info:    info,
		pages:   pages,
		fb:      pages.Bytes()[:info.Size],
		scratch: make([]byte, info.Stride()*info.Height),
		gate:    newGate(),
	}
	d.mirror = newMirror(info.Size, &d.stats.dropped)
	d.eng = &engine{
		ops:          ops,
		chunk:        o.PIOChunk,
		readyTimeout: o.ReadyTimeout,
		readyPoll:    o.ReadyPoll,
		dmaTimeout:   o.DMATimeout,
		log:          o.Logger,
		stats:        &d.stats,
	}
	if ch != nil {
		d.eng.dma = ch
		d.eng.dmaBase = info.DMA.PhysAddr
	}
	d.power.after = o.SuspendAfter
	d.power.suspend = o.SuspendLevel
	d.reboot.Store(int32(o.Reboot))
	d.log.Debug("display ready", "dev", d.String(), "dma", d.eng.dma != nil)
	return d, nil
}

// String returns a string containing configuration information.
func (d *Dev) String() string {
	info := d.Info()
	return fmt.Sprintf("epd.Dev{%s, Width: %d, Height: %d, BPP: %d}", d.ops, info.Width, info.Height, info.BPP)
}

// Info returns a copy of the display description.
func (d *Dev) Info() DisplayInfo {
	d.infoMu.RLock()
	defer d.infoMu.RUnlock()
	info := d.info
	if info.DMA != nil {
		dma := *info.DMA
		info.DMA = &dma
	}
	return info
}

// Framebuffer returns the framebuffer. Writes to it show up on the panel
// with the next update.
func (d *Dev) Framebuffer() []byte {
	return d.fb
}

// Mmap maps n bytes of the framebuffer starting at off. Pages are handed out
// on access through Mapping.Fault.
func (d *Dev) Mmap(off, n int) (*fbmap.Mapping, error) {
	return d.pages.Map(off, n)
}

// Subscribe returns a channel receiving an Event per mirror update, and a
// function to cancel the subscription. Events are dropped when the channel
// buffer of n events is full.
func (d *Dev) Subscribe(n int) (<-chan Event, func()) {
	return d.mirror.subscribe(n)
}

// SetTransform installs a per byte function used instead of a straight copy
// when the whole framebuffer is copied to the mirror. nil removes it.
func (d *Dev) SetTransform(f func(byte) byte) {
	d.mirror.setTransform(f)
}

// Mirror returns a snapshot of the image last sent to the panel, in
// physical orientation.
func (d *Dev) Mirror() *image.Gray {
	info := d.Info()
	return d.mirror.snapshot(&info)
}

// Stats returns the transfer counters.
func (d *Dev) Stats() Stats {
	return Stats{
		PIOBytes:     d.stats.pioBytes.Load(),
		DMABytes:     d.stats.dmaBytes.Load(),
		DMATransfers: d.stats.dmaTransfers.Load(),
		DMATimeouts:  d.stats.dmaTimeouts.Load(),
		Refreshes:    d.stats.refreshes.Load(),
		Busy:         d.stats.busy.Load(),
		Dropped:      d.stats.dropped.Load(),
	}
}

// UpdateDisplay sends the whole framebuffer to the panel.
func (d *Dev) UpdateDisplay(ctx context.Context, e Effect) error {
	return d.Command(ctx, CmdUpdateDisplay, e)
}

// UpdateArea sends a rectangle to the panel.
func (d *Dev) UpdateArea(ctx context.Context, a *UpdateArea) error {
	return d.Command(ctx, CmdUpdateArea, a)
}

// Restore copies the mirror back into the framebuffer and sends it to the
// panel, typically after the panel was blanked.
func (d *Dev) Restore(ctx context.Context, e Effect) error {
	return d.Command(ctx, CmdRestoreDisplay, e)
}

// Orientation returns the orientation used by Draw and Bounds.
func (d *Dev) Orientation() Orientation {
	d.infoMu.RLock()
	defer d.infoMu.RUnlock()
	return d.info.Orientation
}

// SetOrientation changes the orientation used by Draw and Bounds.
func (d *Dev) SetOrientation(o Orientation) error {
	return d.Command(context.Background(), CmdSetOrientation, o)
}

// RebootBehavior returns what Halt leaves on the panel.
func (d *Dev) RebootBehavior() RebootBehavior {
	return RebootBehavior(d.reboot.Load())
}

// SetRebootBehavior changes what Halt leaves on the panel.
func (d *Dev) SetRebootBehavior(r RebootBehavior) error {
	return d.Command(context.Background(), CmdSetRebootBehavior, r)
}

// ReadRegister reads a controller register.
func (d *Dev) ReadRegister(ctx context.Context, r Register) (uint32, error) {
	var v uint32
	err := d.bracket(ctx, "read register", func() error {
		var err error
		v, err = d.eng.readRegister(ctx, r)
		return err
	})
	return v, err
}

// WriteRegister writes a controller register.
func (d *Dev) WriteRegister(ctx context.Context, r Register, v uint32) error {
	return d.bracket(ctx, "write register", func() error {
		return d.eng.writeRegister(ctx, r, v)
	})
}

// ReadBack reads the controller RAM into the framebuffer and the mirror.
func (d *Dev) ReadBack(ctx context.Context) error {
	return d.bracket(ctx, "read back", func() error {
		info := d.Info()
		r := info.Bounds()
		if err := d.eng.beginArea(ctx, Read, r); err != nil {
			return err
		}
		if err := d.eng.transfer(ctx, Read, d.fb[:info.Stride()*info.Height], 0, d.opts.NeedsDMA(&info, r)); err != nil {
			return err
		}
		if err := d.eng.endArea(ctx); err != nil {
			return err
		}
		d.mirror.updateFull(&info, d.fb, EffectNone, false)
		return nil
	})
}

// Halt applies the reboot behavior and puts the panel to sleep.
//
// The panel stays locked out until SetPowerLevel raises the level again.
func (d *Dev) Halt() error {
	ctx := context.Background()
	var err error
	switch d.RebootBehavior() {
	case RebootClear:
		err = d.Command(ctx, CmdClearScreen, nil)
	case RebootSplash:
		err = d.Command(ctx, CmdSplashScreen, nil)
	}
	if perr := d.SetPowerLevel(PowerSleep); err == nil {
		err = perr
	}
	return err
}

// Close stops the auto suspend timer and releases the framebuffer memory.
// It does not touch the panel; call Halt first.
func (d *Dev) Close() error {
	d.stopPower()
	return d.pages.Close()
}

func (d *Dev) updateDisplay(ctx context.Context, e Effect) error {
	if !e.valid() {
		return fmt.Errorf("%w: effect %s", ErrBadArgument, e)
	}
	info := d.Info()
	if e == EffectFlash {
		return d.updateArea(ctx, &UpdateArea{Rect: info.Bounds(), Effect: e}, nil)
	}
	return d.bracket(ctx, "update display", func() error {
		d.mirror.updateFull(&info, d.fb, e, false)
		return d.writeFrame(ctx, &info, CmdUpdateDisplay, e)
	})
}

func (d *Dev) restore(ctx context.Context, e Effect) error {
	if !e.valid() || e == EffectFlash {
		return fmt.Errorf("%w: cannot restore with effect %s", ErrBadArgument, e)
	}
	return d.bracket(ctx, "restore display", func() error {
		d.setRestoring(true)
		defer d.setRestoring(false)
		info := d.Info()
		d.mirror.updateFull(&info, d.fb, e, true)
		return d.writeFrame(ctx, &info, CmdRestoreDisplay, e)
	})
}

func (d *Dev) clear(ctx context.Context) error {
	return d.bracket(ctx, "clear screen", func() error {
		info := d.Info()
		for i := range d.fb {
			d.fb[i] = 0
		}
		d.mirror.updateFull(&info, d.fb, EffectFull, false)
		return d.writeFrame(ctx, &info, CmdClearScreen, EffectFull)
	})
}

func (d *Dev) setOrientation(o Orientation) error {
	if !o.valid() {
		return fmt.Errorf("%w: orientation %s", ErrBadArgument, o)
	}
	if !d.gate.tryLock("set orientation") {
		d.stats.busy.Add(1)
		return fmt.Errorf("epd: set orientation: %w (held by %q)", ErrBusy, d.gate.holder())
	}
	defer d.unlockGate()
	d.infoMu.Lock()
	d.info.Orientation = o
	d.infoMu.Unlock()
	return nil
}

func (d *Dev) setRestoring(on bool) {
	d.infoMu.Lock()
	d.info.Restore = on
	d.infoMu.Unlock()
}

// writeFrame sends the whole framebuffer and refreshes the panel.
func (d *Dev) writeFrame(ctx context.Context, info *DisplayInfo, cmd Cmd, e Effect) error {
	r := info.Bounds()
	d.callHook(ctx, HookInSituBegin, cmd, e)
	defer d.callHook(ctx, HookInSituEnd, cmd, e)
	if err := d.eng.beginArea(ctx, Write, r); err != nil {
		return err
	}
	if err := d.eng.transfer(ctx, Write, d.fb[:info.Stride()*info.Height], 0, d.opts.NeedsDMA(info, r)); err != nil {
		return err
	}
	if err := d.eng.endArea(ctx); err != nil {
		return err
	}
	if e == EffectNone {
		return nil
	}
	return d.eng.refresh(ctx, r, e)
}
