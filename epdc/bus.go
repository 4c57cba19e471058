// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epdc

import (
	"sync/atomic"
	"unsafe"

	"github.com/juju/errors"
)

// Bus gives 32 bit access to the host interface registers.
type Bus interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// Mem is a region of physical memory mapped in the process.
//
// It implements Bus for register windows and provides the framebuffer
// carve-out the DMA engine reads.
type Mem struct {
	b    []byte
	phys uint64
}

// Bytes returns the mapped memory.
func (m *Mem) Bytes() []byte {
	return m.b
}

// PhysAddr returns the physical address of the first byte.
func (m *Mem) PhysAddr() uint64 {
	return m.phys
}

// Read32 implements Bus. off must be 4 bytes aligned.
func (m *Mem) Read32(off uint32) uint32 {
	return atomic.LoadUint32(m.word(off))
}

// Write32 implements Bus.
func (m *Mem) Write32(off uint32, v uint32) {
	atomic.StoreUint32(m.word(off), v)
}

func (m *Mem) word(off uint32) *uint32 {
	if off&3 != 0 || int(off)+4 > len(m.b) {
		panic(errors.Errorf("epdc: register offset %#x outside of a %d bytes window", off, len(m.b)))
	}
	return (*uint32)(unsafe.Pointer(&m.b[off]))
}

// Close unmaps the memory.
func (m *Mem) Close() error {
	if m.b == nil {
		return nil
	}
	err := unmap(m.b)
	m.b = nil
	return errors.Annotate(err, "epdc: unmapping")
}
