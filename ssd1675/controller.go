// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1675

import (
	"encoding/binary"
	"image"

	"github.com/GermanBionicSystems/epdhal/epd"
)

type controller interface {
	sendCommand(byte)
	sendData([]byte)
	waitUntilIdle()
}

func initDisplay(ctrl controller, opts *Opts) {
	ctrl.waitUntilIdle()
	ctrl.sendCommand(swReset)
	ctrl.waitUntilIdle()

	if opts.hasLUT() {
		ctrl.sendCommand(setAnalogBlockControl)
		ctrl.sendData([]byte{0x54})

		ctrl.sendCommand(setDigitalBlockControl)
		ctrl.sendData([]byte{0x3B})
	}

	gates := [3]byte{}
	binary.LittleEndian.PutUint16(gates[:], uint16(opts.Height-1))
	ctrl.sendCommand(driverOutputControl)
	ctrl.sendData(gates[:])

	setMemoryArea(ctrl, image.Rect(0, 0, ramWidth(opts.Width), opts.Height))

	ctrl.sendCommand(borderWaveformControl)
	if opts.hasLUT() {
		ctrl.sendData([]byte{0x03})
	} else {
		ctrl.sendData([]byte{0x05})
	}

	ctrl.sendCommand(displayUpdateControl1)
	ctrl.sendData([]byte{0x00, 0x80})

	if opts.hasLUT() {
		lut := opts.FullUpdate
		ctrl.sendCommand(gateDrivingVoltageControl)
		ctrl.sendData([]byte{lut[lutGateVoltage]})

		ctrl.sendCommand(sourceDrivingVoltageControl)
		ctrl.sendData(lut[lutSourceVoltage : lutSourceVoltage+3])

		ctrl.sendCommand(setDummyLinePeriod)
		ctrl.sendData([]byte{lut[lutDummyLine]})

		ctrl.sendCommand(setGateTime)
		ctrl.sendData([]byte{lut[lutGateTime]})
	} else {
		// Internal temperature sensor, waveforms come from OTP.
		ctrl.sendCommand(tempSensorSelect)
		ctrl.sendData([]byte{0x80})
	}

	ctrl.waitUntilIdle()
}

// configDisplayMode loads the waveform for effect into the LUT register.
func configDisplayMode(ctrl controller, effect epd.Effect, lut LUT) {
	var vcom byte
	var borderWaveformControlValue byte

	switch effect {
	case epd.EffectPartial:
		vcom = 0x24
		borderWaveformControlValue = 0x01
	default:
		vcom = 0x55
		borderWaveformControlValue = 0x03
	}

	ctrl.sendCommand(writeVcomRegister)
	ctrl.sendData([]byte{vcom})

	ctrl.sendCommand(borderWaveformControl)
	ctrl.sendData([]byte{borderWaveformControlValue})

	ctrl.sendCommand(writeLutRegister)
	ctrl.sendData(lut[:lutWaveform])

	if effect == epd.EffectPartial {
		// Undocumented command used in vendor example code.
		ctrl.sendCommand(writeRegisterForDisplayOption)
		ctrl.sendData([]byte{0x00, 0x00, 0x00, 0x00, 0x40, 0x00, 0x00})

		ctrl.sendCommand(displayUpdateControl2)
		ctrl.sendData([]byte{displayUpdateEnableClock | displayUpdateEnableAnalog})

		ctrl.sendCommand(masterActivation)
		ctrl.waitUntilIdle()
	}
}

// setMemoryArea configures the target drawing area (horizontal is in bytes,
// vertical in pixels).
func setMemoryArea(ctrl controller, area image.Rectangle) {
	startX, endX := uint8(area.Min.X), uint8(area.Max.X-1)
	startY, endY := uint16(area.Min.Y), uint16(area.Max.Y-1)

	startEndY := [4]byte{}
	binary.LittleEndian.PutUint16(startEndY[0:], startY)
	binary.LittleEndian.PutUint16(startEndY[2:], endY)

	ctrl.sendCommand(dataEntryModeSetting)
	ctrl.sendData([]byte{
		// Y increment, X increment; update address counter in X direction
		0b011,
	})

	ctrl.sendCommand(setRAMXAddressStartEndPosition)
	ctrl.sendData([]byte{startX, endX})

	ctrl.sendCommand(setRAMYAddressStartEndPosition)
	ctrl.sendData(startEndY[:4])

	ctrl.sendCommand(setRAMXAddressCounter)
	ctrl.sendData([]byte{startX})

	ctrl.sendCommand(setRAMYAddressCounter)
	ctrl.sendData(startEndY[:2])
}

// updateDisplay runs the refresh sequence and waits for it to finish. otp
// selects waveforms stored in the controller instead of the LUT register.
func updateDisplay(ctrl controller, effect epd.Effect, otp bool) {
	flags := displayUpdateDisableClock |
		displayUpdateDisableAnalog |
		displayUpdateDisplay |
		displayUpdateEnableClock |
		displayUpdateEnableAnalog
	if otp {
		flags |= displayUpdateLoadTemperature | displayUpdateLoadLUTFromOTP
	}
	if effect == epd.EffectPartial {
		flags |= displayUpdateMode2
	}

	ctrl.sendCommand(displayUpdateControl2)
	ctrl.sendData([]byte{flags})

	ctrl.sendCommand(masterActivation)
	ctrl.waitUntilIdle()
}

// setAnalog turns the clock and the analog block on or off without
// refreshing the panel.
func setAnalog(ctrl controller, on bool) {
	flags := displayUpdateDisableAnalog | displayUpdateDisableClock
	if on {
		flags = displayUpdateEnableClock | displayUpdateEnableAnalog
	}
	ctrl.sendCommand(displayUpdateControl2)
	ctrl.sendData([]byte{flags})

	ctrl.sendCommand(masterActivation)
	ctrl.waitUntilIdle()
}

// deepSleep turns off the DC/DC converter, clock, output load and MCU. Mode 1
// retains the RAM content, mode 2 does not.
func deepSleep(ctrl controller, mode byte) {
	ctrl.sendCommand(deepSleepMode)
	ctrl.sendData([]byte{mode})
}

// writePlane writes data to one RAM plane at area.
func writePlane(ctrl controller, cmd byte, area image.Rectangle, data []byte) {
	setMemoryArea(ctrl, area)
	ctrl.sendCommand(cmd)
	ctrl.sendData(data)
}
