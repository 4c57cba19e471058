// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epdc

import (
	"encoding/binary"
	"fmt"
	"image"
	"time"

	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// Host interface registers.
const (
	regCommand  uint32 = 0x00
	regParam    uint32 = 0x04
	regData32   uint32 = 0x08
	regData8    uint32 = 0x0C
	regStatus   uint32 = 0x10
	regIRQAck   uint32 = 0x14
	regDMAAddr  uint32 = 0x20
	regDMAAddrH uint32 = 0x24
	regDMALen   uint32 = 0x28
	regDMACtl   uint32 = 0x2C
	regDMAUnit  uint32 = 0x30
)

// Status bits.
const (
	statusBusy      uint32 = 1 << 0
	statusFrameDone uint32 = 1 << 1
	statusDMAError  uint32 = 1 << 2
)

// DMA control bits.
const (
	dmaEnable uint32 = 1 << 0
	dmaRead   uint32 = 1 << 1
	dmaIRQ    uint32 = 1 << 2
)

// Commands
const (
	cmdRunSys      uint32 = 0x02
	cmdStandby     uint32 = 0x04
	cmdSleep       uint32 = 0x05
	cmdInitSys     uint32 = 0x06
	cmdRdReg       uint32 = 0x10
	cmdWrReg       uint32 = 0x11
	cmdLdImgArea   uint32 = 0x22
	cmdLdImgEnd    uint32 = 0x23
	cmdRdImgArea   uint32 = 0x24
	cmdUpdFull     uint32 = 0x33
	cmdUpdFullArea uint32 = 0x34
	cmdUpdPart     uint32 = 0x35
	cmdUpdPartArea uint32 = 0x36
)

// Controller registers, reached with cmdRdReg and cmdWrReg.
const (
	ctlRevision    uint32 = 0x0000
	ctlProduct     uint32 = 0x0002
	ctlStatus      uint32 = 0x000A
	ctlPower       uint32 = 0x0230
	ctlLineLength  uint32 = 0x0306
	ctlFrameLines  uint32 = 0x030A
	ctlTemperature uint32 = 0x0320
	ctlBorder      uint32 = 0x0326
	ctlVCOM        uint32 = 0x0338
)

// Waveform modes.
const (
	waveformDU   uint32 = 1
	waveformGC16 uint32 = 2
)

var registers = map[epd.Register]uint32{
	epd.RegStatus:      ctlStatus,
	epd.RegRevision:    ctlRevision,
	epd.RegTemperature: ctlTemperature,
	epd.RegVCOM:        ctlVCOM,
	epd.RegBorder:      ctlBorder,
}

// Opts is the wiring of the controller.
type Opts struct {
	// Regs is the host interface register window.
	Regs Bus
	// Framebuffer is the memory the DMA engine reaches. When nil the
	// framebuffer is ordinary memory and every transfer uses PIO.
	Framebuffer *Mem
	// IRQ is the end of frame interrupt line. It is required with a
	// Framebuffer.
	IRQ gpio.PinIn
	// Reset is optional.
	Reset gpio.PinOut
	// ResetTimeout bounds the wait for the controller after a reset.
	// Defaults to 1s.
	ResetTimeout time.Duration
}

// Dev is a controller behind a host interface. It implements
// epd.ControllerOps and epd.FramebufferProvider.
type Dev struct {
	opts Opts
	regs Bus
	dma  *channel
	info epd.DisplayInfo
	off  bool
}

var (
	_ epd.ControllerOps       = &Dev{}
	_ epd.FramebufferProvider = &Dev{}
)

// New returns a Dev using the registers and memory in opts. It does not
// touch the hardware; epd.New calls Init.
func New(opts *Opts) (*Dev, error) {
	if opts.Regs == nil {
		return nil, errors.NotValidf("epdc without registers")
	}
	d := &Dev{opts: *opts, regs: opts.Regs}
	if d.opts.ResetTimeout <= 0 {
		d.opts.ResetTimeout = time.Second
	}
	if d.opts.Framebuffer != nil && d.opts.IRQ != nil {
		d.dma = &channel{regs: d.regs, irq: d.opts.IRQ}
	}
	return d, nil
}

func (d *Dev) String() string {
	if d.opts.Framebuffer != nil {
		return fmt.Sprintf("epdc.Dev{fb: %#x}", d.opts.Framebuffer.PhysAddr())
	}
	return "epdc.Dev{pio}"
}

// Framebuffer implements epd.FramebufferProvider.
func (d *Dev) Framebuffer(size int) ([]byte, uint64, error) {
	m := d.opts.Framebuffer
	if m == nil {
		return make([]byte, size), 0, nil
	}
	if len(m.Bytes()) < size {
		return nil, 0, errors.NotValidf("%d bytes framebuffer for a %d bytes frame", len(m.Bytes()), size)
	}
	return m.Bytes()[:size], m.PhysAddr(), nil
}

// Init implements epd.ControllerOps.
//
// It fails when no controller answers or when the DMA engine cannot be used.
func (d *Dev) Init(info *epd.DisplayInfo) error {
	if d.opts.Framebuffer != nil && d.opts.IRQ == nil {
		return errors.NotValidf("%s DMA without an interrupt line", d)
	}
	if d.dma != nil {
		if err := d.opts.IRQ.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			return errors.Annotatef(err, "%s interrupt line", d)
		}
		unit := int(d.regs.Read32(regDMAUnit))
		if unit <= 0 {
			return errors.NotSupportedf("%s DMA engine", d)
		}
		d.dma.unit = unit
	}
	if err := d.reset(); err != nil {
		return err
	}
	d.command(cmdInitSys)
	if err := d.waitIdle(); err != nil {
		return err
	}
	if p := d.readReg(ctlProduct); p == 0 || p == 0xFFFF {
		return errors.NotFoundf("controller behind %s", d)
	}
	if _, ok := pixelFormat(info.BPP); !ok {
		return errors.NotSupportedf("%d bits per pixel on %s", info.BPP, d)
	}
	d.writeReg(ctlLineLength, uint32(info.Width))
	d.writeReg(ctlFrameLines, uint32(info.Height))
	d.info = *info
	d.off = false
	return nil
}

// reset pulses the reset line, when there is one, and waits for the
// controller.
func (d *Dev) reset() error {
	if rst := d.opts.Reset; rst != nil {
		if err := rst.Out(gpio.Low); err != nil {
			return errors.Annotate(err, "epdc: reset")
		}
		time.Sleep(time.Millisecond)
		if err := rst.Out(gpio.High); err != nil {
			return errors.Annotate(err, "epdc: reset")
		}
	}
	return d.waitIdle()
}

func (d *Dev) waitIdle() error {
	deadline := time.Now().Add(d.opts.ResetTimeout)
	for d.regs.Read32(regStatus)&statusBusy != 0 {
		if time.Now().After(deadline) {
			return errors.Annotatef(epd.ErrHardwareTimeout, "%s stayed busy", d)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (d *Dev) command(cmd uint32, params ...uint32) {
	d.regs.Write32(regCommand, cmd)
	for _, p := range params {
		d.regs.Write32(regParam, p)
	}
}

func (d *Dev) readReg(addr uint32) uint32 {
	d.command(cmdRdReg, addr)
	return d.regs.Read32(regData32) & 0xFFFF
}

func (d *Dev) writeReg(addr, v uint32) {
	d.command(cmdWrReg, addr, v)
}

// Ready implements epd.ControllerOps.
func (d *Dev) Ready() (bool, error) {
	s := d.regs.Read32(regStatus)
	if s&statusDMAError != 0 {
		d.regs.Write32(regIRQAck, statusDMAError)
		return false, errors.Errorf("%s: DMA bus error", d)
	}
	return s&statusBusy == 0, nil
}

// WriteRegister implements epd.ControllerOps.
func (d *Dev) WriteRegister(r epd.Register, v uint32) error {
	addr, ok := registers[r]
	if !ok || r == epd.RegStatus || r == epd.RegRevision {
		return errors.NotSupportedf("writing %s on %s", r, d)
	}
	d.writeReg(addr, v&0xFFFF)
	return nil
}

// ReadRegister implements epd.ControllerOps.
func (d *Dev) ReadRegister(r epd.Register) (uint32, error) {
	addr, ok := registers[r]
	if !ok {
		return 0, errors.NotSupportedf("reading %s on %s", r, d)
	}
	return d.readReg(addr), nil
}

// WritePIO implements epd.ControllerOps. Whole words go through the 32 bit
// port, the tail through the 8 bit one.
func (d *Dev) WritePIO(p []byte) error {
	for len(p) >= 4 {
		d.regs.Write32(regData32, binary.LittleEndian.Uint32(p))
		p = p[4:]
	}
	for _, b := range p {
		d.regs.Write32(regData8, uint32(b))
	}
	return nil
}

// ReadPIO implements epd.ControllerOps.
func (d *Dev) ReadPIO(p []byte) error {
	for len(p) >= 4 {
		binary.LittleEndian.PutUint32(p, d.regs.Read32(regData32))
		p = p[4:]
	}
	for i := range p {
		p[i] = byte(d.regs.Read32(regData8))
	}
	return nil
}

// DMA implements epd.ControllerOps.
func (d *Dev) DMA() epd.DMAChannel {
	if d.dma == nil {
		return nil
	}
	return d.dma
}

// BeginArea implements epd.ControllerOps.
func (d *Dev) BeginArea(dir epd.Direction, area image.Rectangle) error {
	f, ok := pixelFormat(d.info.BPP)
	if !ok {
		return errors.NotSupportedf("%d bits per pixel on %s", d.info.BPP, d)
	}
	cmd := cmdLdImgArea
	if dir == epd.Read {
		cmd = cmdRdImgArea
	}
	d.command(cmd, append([]uint32{f << 4}, rect(area)...)...)
	return nil
}

// EndArea implements epd.ControllerOps.
func (d *Dev) EndArea() error {
	d.command(cmdLdImgEnd)
	return nil
}

// Refresh implements epd.ControllerOps.
//
// Full refreshes use the GC16 waveform, partial ones DU.
func (d *Dev) Refresh(area image.Rectangle, effect epd.Effect) error {
	mode := waveformGC16
	if effect == epd.EffectPartial {
		mode = waveformDU
	}
	whole := area == image.Rect(0, 0, d.info.Width, d.info.Height)
	switch {
	case effect == epd.EffectPartial && whole:
		d.command(cmdUpdPart, mode<<8)
	case effect == epd.EffectPartial:
		d.command(cmdUpdPartArea, append([]uint32{mode << 8}, rect(area)...)...)
	case whole:
		d.command(cmdUpdFull, mode<<8)
	default:
		d.command(cmdUpdFullArea, append([]uint32{mode << 8}, rect(area)...)...)
	}
	return nil
}

// SetPower implements epd.ControllerOps.
//
// Blank also turns off the panel power rails. Off additionally holds the
// controller in reset; leaving it runs Init again.
func (d *Dev) SetPower(l epd.PowerLevel) error {
	switch l {
	case epd.PowerInit:
	case epd.PowerOn:
		if d.off {
			info := d.info
			if err := d.Init(&info); err != nil {
				return err
			}
		}
		d.command(cmdRunSys)
		d.writeReg(ctlPower, 1)
	case epd.PowerStandby:
		d.command(cmdStandby)
	case epd.PowerBlank:
		d.writeReg(ctlPower, 0)
		d.command(cmdStandby)
	case epd.PowerSleep:
		d.writeReg(ctlPower, 0)
		d.command(cmdSleep)
	case epd.PowerOff:
		d.writeReg(ctlPower, 0)
		d.command(cmdSleep)
		if rst := d.opts.Reset; rst != nil {
			if err := rst.Out(gpio.Low); err != nil {
				return errors.Annotate(err, "epdc: reset")
			}
			d.off = true
		}
	default:
		return errors.NotValidf("power level %s", l)
	}
	return nil
}

// Halt implements conn.Resource. It stops the DMA engine.
func (d *Dev) Halt() error {
	if d.dma != nil {
		return d.dma.Disable()
	}
	return nil
}

// pixelFormat is the LD_IMG_AREA pixel format code for bpp.
func pixelFormat(bpp int) (uint32, bool) {
	switch bpp {
	case 1:
		return 0, true
	case 2:
		return 1, true
	case 4:
		return 2, true
	case 8:
		return 3, true
	}
	return 0, false
}

func rect(r image.Rectangle) []uint32 {
	return []uint32{uint32(r.Min.X), uint32(r.Min.Y), uint32(r.Dx()), uint32(r.Dy())}
}
