// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1675

import (
	"time"

	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// errorHandler is a wrapper for error management.
type errorHandler struct {
	d   *Dev
	err error
}

func (eh *errorHandler) rstOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.rst.Out(l)
}

func (eh *errorHandler) cTx(w []byte, r []byte) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.c.Tx(w, r)
}

func (eh *errorHandler) dcOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.dc.Out(l)
}

func (eh *errorHandler) csOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.cs.Out(l)
}

func (eh *errorHandler) sleep(d time.Duration) {
	if eh.err != nil {
		return
	}
	time.Sleep(d)
}

// waitUntilIdle polls the busy line until it drops or BusyTimeout elapses.
func (eh *errorHandler) waitUntilIdle() {
	if eh.err != nil {
		return
	}
	deadline := time.Now().Add(eh.d.opts.BusyTimeout)
	for eh.d.busy.Read() == gpio.High {
		if time.Now().After(deadline) {
			eh.err = errors.Annotatef(epd.ErrHardwareTimeout, "%s stayed busy for %s", eh.d, eh.d.opts.BusyTimeout)
			return
		}
		time.Sleep(busyPoll)
	}
}

func (eh *errorHandler) sendCommand(cmd byte) {
	if eh.err != nil {
		return
	}

	eh.dcOut(gpio.Low)
	eh.csOut(gpio.Low)
	eh.cTx([]byte{cmd}, nil)
	eh.csOut(gpio.High)
}

func (eh *errorHandler) sendData(data []byte) {
	if eh.err != nil {
		return
	}

	eh.dcOut(gpio.High)
	eh.csOut(gpio.Low)
	for len(data) > 0 && eh.err == nil {
		n := len(data)
		if n > maxTxSize {
			n = maxTxSize
		}
		eh.cTx(data[:n], nil)
		data = data[n:]
	}
	eh.csOut(gpio.High)
}
