// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1675

import (
	"fmt"
	"image"
	"time"

	"github.com/juju/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3/rpi"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// Commands
const (
	driverOutputControl            byte = 0x01
	gateDrivingVoltageControl      byte = 0x03
	sourceDrivingVoltageControl    byte = 0x04
	deepSleepMode                  byte = 0x10
	dataEntryModeSetting           byte = 0x11
	swReset                        byte = 0x12
	tempSensorSelect               byte = 0x18
	tempSensorRegWrite             byte = 0x1A
	masterActivation               byte = 0x20
	displayUpdateControl1          byte = 0x21
	displayUpdateControl2          byte = 0x22
	writeRAMBW                     byte = 0x24
	writeRAMRed                    byte = 0x26
	writeVcomRegister              byte = 0x2C
	writeLutRegister               byte = 0x32
	writeRegisterForDisplayOption  byte = 0x37
	setDummyLinePeriod             byte = 0x3A
	setGateTime                    byte = 0x3B
	borderWaveformControl          byte = 0x3C
	setRAMXAddressStartEndPosition byte = 0x44
	setRAMYAddressStartEndPosition byte = 0x45
	setRAMXAddressCounter          byte = 0x4E
	setRAMYAddressCounter          byte = 0x4F
	setAnalogBlockControl          byte = 0x74
	setDigitalBlockControl         byte = 0x7E
)

// Flags for the displayUpdateControl2 command
const (
	displayUpdateDisableClock byte = 1 << iota
	displayUpdateDisableAnalog
	displayUpdateDisplay
	displayUpdateMode2
	displayUpdateLoadLUTFromOTP
	displayUpdateLoadTemperature
	displayUpdateEnableClock
	displayUpdateEnableAnalog
)

// Driving voltages, as found at the end of the vendor waveforms.
const (
	gateDrivingVoltage19V          byte = 0x15
	sourceDrivingVoltageVSH1_15V   byte = 0x41
	sourceDrivingVoltageVSH2_5V    byte = 0xA8
	sourceDrivingVoltageVSL_neg15V byte = 0x32
)

// Deep sleep modes.
const (
	deepSleepKeepRAM byte = 0x01
	deepSleepNoRAM   byte = 0x03
)

// Layout of a LUT.
const (
	lutWaveform      = 70
	lutGateVoltage   = 70
	lutSourceVoltage = 71
	lutDummyLine     = 74
	lutGateTime      = 75
	lutLen           = 76
)

const (
	// maxTxSize is the largest single SPI transaction most hosts accept.
	maxTxSize = 4096
	busyPoll  = 5 * time.Millisecond
)

// LUT contains the waveform that is used to program the display, followed
// by the gate voltage, the three source voltages, the dummy line period and
// the gate time.
type LUT []byte

// Opts definies the structure of the display configuration.
type Opts struct {
	Width  int
	Height int
	// FullUpdate and PartialUpdate are loaded into the LUT register. When
	// either is missing the waveforms stored in the controller OTP are used.
	FullUpdate    LUT
	PartialUpdate LUT
	// BusyTimeout bounds the wait for the busy line inside a command
	// sequence. Defaults to 5s.
	BusyTimeout time.Duration
}

func (o *Opts) hasLUT() bool {
	return len(o.FullUpdate) >= lutLen && len(o.PartialUpdate) >= lutWaveform
}

// Display returns the epd geometry matching the panel. The width is rounded
// up to whole bytes of controller RAM.
func (o *Opts) Display() epd.Opts {
	return epd.Opts{
		Width:  ramWidth(o.Width) * 8,
		Height: o.Height,
		BPP:    1,
		Align:  1,
	}
}

// ramWidth is the width in bytes of a RAM row.
func ramWidth(w int) int {
	return (w + 7) / 8
}

// EPD2in13v2 cointains display configuration for the Waveshare 2in13v2.
var EPD2in13v2 = Opts{
	Width:  122,
	Height: 250,
	FullUpdate: LUT{
		0x80, 0x60, 0x40, 0x00, 0x00, 0x00, 0x00,
		0x10, 0x60, 0x20, 0x00, 0x00, 0x00, 0x00,
		0x80, 0x60, 0x40, 0x00, 0x00, 0x00, 0x00,
		0x10, 0x60, 0x20, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,

		0x03, 0x03, 0x00, 0x00, 0x02,
		0x09, 0x09, 0x00, 0x00, 0x02,
		0x03, 0x03, 0x00, 0x00, 0x02,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,

		gateDrivingVoltage19V,
		sourceDrivingVoltageVSH1_15V, sourceDrivingVoltageVSH2_5V, sourceDrivingVoltageVSL_neg15V,
		0x30, 0x0A,
	},
	PartialUpdate: LUT{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,

		0x0A, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,

		gateDrivingVoltage19V,
		sourceDrivingVoltageVSH1_15V, sourceDrivingVoltageVSH2_5V, sourceDrivingVoltageVSL_neg15V,
		0x30, 0x0A,
	},
}

// EPD2in13v4 contains display configuration for the Waveshare 2in13v4. The
// panel uses the waveforms stored in the controller.
var EPD2in13v4 = Opts{
	Width:  122,
	Height: 250,
}

// plane is data written to the black/white RAM that still has to be copied
// to the red RAM.
type plane struct {
	area image.Rectangle
	data []byte
}

// Dev defines the handler which is used to access the display.
//
// Dev implements epd.ControllerOps. It is not safe for concurrent use; an
// epd.Dev serializes the calls.
type Dev struct {
	c conn.Conn

	dc   gpio.PinOut
	cs   gpio.PinOut
	rst  gpio.PinOut
	busy gpio.PinIn

	opts Opts

	// RAM window of the area being written, in bytes horizontally.
	area    image.Rectangle
	writing bool
	pending []byte
	dirty   []plane

	// Waveform currently in the LUT register, EffectNone when unknown.
	loaded epd.Effect
	asleep bool
}

var _ epd.ControllerOps = &Dev{}

// New creates new handler which is used to access the display.
//
// Missing pins are reported by Init.
func New(p spi.Port, dc, cs, rst gpio.PinOut, busy gpio.PinIn, opts *Opts) (*Dev, error) {
	if opts.Width <= 0 || opts.Height <= 0 || ramWidth(opts.Width) > 256 || opts.Height > 1<<16 {
		return nil, errors.NotValidf("panel size %dx%d", opts.Width, opts.Height)
	}

	c, err := p.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, errors.Annotate(err, "ssd1675")
	}

	if busy != nil {
		if err := busy.In(gpio.Float, gpio.NoEdge); err != nil {
			return nil, errors.Annotate(err, "ssd1675: busy pin")
		}
	}

	d := &Dev{
		c:    c,
		dc:   dc,
		cs:   cs,
		rst:  rst,
		busy: busy,
		opts: *opts,
	}
	if d.opts.BusyTimeout <= 0 {
		d.opts.BusyTimeout = 5 * time.Second
	}

	return d, nil
}

// NewHat creates new handler which is used to access the display. Default Waveshare Hat configuration is used.
func NewHat(p spi.Port, opts *Opts) (*Dev, error) {
	dc := rpi.P1_22
	cs := rpi.P1_24
	rst := rpi.P1_11
	busy := rpi.P1_18
	return New(p, dc, cs, rst, busy, opts)
}

// String returns a string containing configuration information.
func (d *Dev) String() string {
	return fmt.Sprintf("ssd1675.Dev{%s, %s, Width: %d, Height: %d}", d.c, d.dc, d.opts.Width, d.opts.Height)
}

// Init resets the controller and configures it for the panel.
func (d *Dev) Init(info *epd.DisplayInfo) error {
	for _, p := range []struct {
		name string
		pin  interface{}
	}{
		{"dc", d.dc},
		{"cs", d.cs},
		{"rst", d.rst},
		{"busy", d.busy},
	} {
		if p.pin == nil {
			return errors.NotValidf("%s without %s pin", d, p.name)
		}
	}
	if info.BPP != 1 {
		return errors.NotSupportedf("%d bits per pixel on %s", info.BPP, d)
	}
	if want := d.opts.Display(); info.Width != want.Width || info.Height != want.Height {
		return errors.NotValidf("%dx%d framebuffer for %s", info.Width, info.Height, d)
	}

	eh := errorHandler{d: d}
	d.start(&eh)
	return errors.Annotatef(eh.err, "initializing %s", d)
}

// start resets the controller and brings it out of deep sleep.
func (d *Dev) start(eh *errorHandler) {
	d.reset(eh)
	initDisplay(eh, &d.opts)
	d.loaded = epd.EffectNone
	if d.opts.hasLUT() {
		configDisplayMode(eh, epd.EffectFull, d.opts.FullUpdate)
		d.loaded = epd.EffectFull
	}
	d.asleep = false
}

// reset the hardware.
func (d *Dev) reset(eh *errorHandler) {
	eh.rstOut(gpio.High)
	eh.sleep(20 * time.Millisecond)
	eh.rstOut(gpio.Low)
	eh.sleep(2 * time.Millisecond)
	eh.rstOut(gpio.High)
	eh.sleep(20 * time.Millisecond)
}

// Ready implements epd.ControllerOps. The busy line is high while the
// controller works.
func (d *Dev) Ready() (bool, error) {
	return d.busy.Read() == gpio.Low, nil
}

// WriteRegister implements epd.ControllerOps.
//
// The temperature is the 12 bit value of the external sensor register.
func (d *Dev) WriteRegister(r epd.Register, v uint32) error {
	var cmd byte
	var data []byte
	switch r {
	case epd.RegVCOM:
		cmd, data = writeVcomRegister, []byte{byte(v)}
	case epd.RegBorder:
		cmd, data = borderWaveformControl, []byte{byte(v)}
	case epd.RegTemperature:
		cmd, data = tempSensorRegWrite, []byte{byte(v >> 4), byte(v << 4)}
	default:
		return errors.NotSupportedf("writing %s on %s", r, d)
	}
	eh := errorHandler{d: d}
	eh.sendCommand(cmd)
	eh.sendData(data)
	return eh.err
}

// ReadRegister implements epd.ControllerOps. The HAT wiring has no data
// line back from the controller.
func (d *Dev) ReadRegister(r epd.Register) (uint32, error) {
	return 0, errors.NotSupportedf("reading %s on %s", r, d)
}

// WritePIO implements epd.ControllerOps.
//
// The controller RAM stores white as 1.
func (d *Dev) WritePIO(p []byte) error {
	if !d.writing {
		return errors.Annotatef(epd.ErrBadArgument, "data outside of an area on %s", d)
	}
	inverted := make([]byte, len(p))
	for i, b := range p {
		inverted[i] = ^b
	}
	eh := errorHandler{d: d}
	eh.sendData(inverted)
	if eh.err == nil {
		d.pending = append(d.pending, inverted...)
	}
	return eh.err
}

// ReadPIO implements epd.ControllerOps.
func (d *Dev) ReadPIO(p []byte) error {
	return errors.NotSupportedf("reading display RAM on %s", d)
}

// DMA implements epd.ControllerOps. SPI controllers have none.
func (d *Dev) DMA() epd.DMAChannel {
	return nil
}

// BeginArea implements epd.ControllerOps.
func (d *Dev) BeginArea(dir epd.Direction, area image.Rectangle) error {
	if dir == epd.Read {
		return errors.NotSupportedf("reading display RAM on %s", d)
	}
	if area.Min.X%8 != 0 || area.Max.X%8 != 0 {
		return errors.Annotatef(epd.ErrBadArgument, "area %v is not byte aligned", area)
	}
	d.area = image.Rect(area.Min.X/8, area.Min.Y, area.Max.X/8, area.Max.Y)

	eh := errorHandler{d: d}
	setMemoryArea(&eh, d.area)
	eh.sendCommand(writeRAMBW)
	if eh.err != nil {
		return eh.err
	}
	d.writing = true
	d.pending = nil
	return nil
}

// EndArea implements epd.ControllerOps.
func (d *Dev) EndArea() error {
	if d.writing && len(d.pending) > 0 {
		d.dirty = append(d.dirty, plane{area: d.area, data: d.pending})
	}
	d.writing = false
	d.pending = nil
	return nil
}

// Refresh implements epd.ControllerOps.
//
// The controller always refreshes the whole panel, area is ignored.
// Afterwards the areas written since the last refresh are copied to the red
// RAM so the next partial refresh compares against what is displayed.
func (d *Dev) Refresh(area image.Rectangle, effect epd.Effect) error {
	eh := errorHandler{d: d}

	if d.opts.hasLUT() {
		want, lut := epd.EffectFull, d.opts.FullUpdate
		if effect == epd.EffectPartial {
			want, lut = epd.EffectPartial, d.opts.PartialUpdate
		}
		if d.loaded != want {
			configDisplayMode(&eh, want, lut)
			d.loaded = want
		}
	}

	updateDisplay(&eh, effect, !d.opts.hasLUT())

	for _, p := range d.dirty {
		writePlane(&eh, writeRAMRed, p.area, p.data)
	}
	if eh.err == nil {
		d.dirty = nil
	}
	return eh.err
}

// SetPower implements epd.ControllerOps.
//
// Standby and blank stop the analog block; the panel keeps its image either
// way. Sleep keeps the RAM, off does not. Leaving either needs a hardware
// reset, which SetPower(epd.PowerOn) does.
func (d *Dev) SetPower(l epd.PowerLevel) error {
	eh := errorHandler{d: d}
	switch l {
	case epd.PowerInit:
	case epd.PowerOn:
		if d.asleep {
			d.start(&eh)
		} else {
			setAnalog(&eh, true)
		}
	case epd.PowerStandby, epd.PowerBlank:
		setAnalog(&eh, false)
	case epd.PowerSleep:
		deepSleep(&eh, deepSleepKeepRAM)
		d.asleep = true
	case epd.PowerOff:
		deepSleep(&eh, deepSleepNoRAM)
		d.asleep = true
		d.dirty = nil
	default:
		return errors.NotValidf("power level %s", l)
	}
	return eh.err
}

// Halt puts the controller into deep sleep. The panel keeps its image.
func (d *Dev) Halt() error {
	return d.SetPower(epd.PowerSleep)
}
