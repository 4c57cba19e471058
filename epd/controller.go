// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"fmt"
	"image"
)

// Register names a controller register independently of its address on a
// given hardware generation.
type Register uint16

// Registers every generation is expected to map.
const (
	RegStatus Register = iota
	RegRevision
	RegTemperature
	RegVCOM
	RegBorder
)

var registerNames = [...]string{"status", "revision", "temperature", "vcom", "border"}

func (r Register) String() string {
	if int(r) >= len(registerNames) {
		return fmt.Sprintf("Register(%d)", int(r))
	}
	return registerNames[r]
}

// Direction of a transfer, as seen from the host.
type Direction int

// Transfer directions.
const (
	Write Direction = iota
	Read
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Path is the mechanism moving the bytes of a transfer.
type Path int

// Transfer paths.
const (
	PathPIO Path = iota
	PathDMA
)

func (p Path) String() string {
	if p == PathDMA {
		return "dma"
	}
	return "pio"
}

// TransferRequest describes one DMA block transfer.
type TransferRequest struct {
	Dir  Direction
	Path Path
	// Offset is the position of the first byte in the framebuffer.
	Offset int
	Size   int
	// PhysAddr is the physical address of the first byte.
	PhysAddr uint64
}

// DMAChannel is a DMA engine able to move framebuffer memory to or from the
// controller.
type DMAChannel interface {
	// MinUnit is the transfer granularity in bytes. Every request size is a
	// multiple of it.
	MinUnit() int
	// Start begins the transfer and returns immediately. done is called once
	// the controller signals the end of the frame; it may be called from any
	// goroutine and more than once.
	Start(req TransferRequest, buf []byte, done func()) error
	// Disable stops the channel, whether or not a transfer is in flight.
	Disable() error
}

// ControllerOps is the interface a display controller generation
// implements.
//
// Callers never issue a transaction before Ready reported true; the
// implementation does not need to poll the ready line itself.
type ControllerOps interface {
	fmt.Stringer
	// Init resets and configures the controller for the geometry in info. It
	// fails when a required hardware capability is missing. It may fill in
	// info.DMA.
	Init(info *DisplayInfo) error
	// Ready reports the state of the ready (not busy) line.
	Ready() (bool, error)
	WriteRegister(r Register, v uint32) error
	ReadRegister(r Register) (uint32, error)
	// WritePIO and ReadPIO move bytes through the data port.
	WritePIO(p []byte) error
	ReadPIO(p []byte) error
	// DMA returns nil when the generation has no DMA channel.
	DMA() DMAChannel
	// BeginArea selects the controller RAM window for the following data
	// transfer; EndArea closes it.
	BeginArea(dir Direction, area image.Rectangle) error
	EndArea() error
	// Refresh drives the panel for area with the waveform for effect.
	// EffectFlash is never passed.
	Refresh(area image.Rectangle, effect Effect) error
	SetPower(l PowerLevel) error
}

// FramebufferProvider is implemented by controllers that own the memory the
// framebuffer must live in, typically a physically contiguous region their
// DMA channel can reach.
type FramebufferProvider interface {
	// Framebuffer returns at least size bytes and their physical address.
	Framebuffer(size int) ([]byte, uint64, error)
}
