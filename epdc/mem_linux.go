// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epdc

import (
	"os"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// OpenMem maps size bytes of physical memory at base through /dev/mem.
//
// base must be page aligned. It requires root.
func OpenMem(base uint64, size int) (*Mem, error) {
	if size <= 0 {
		return nil, errors.NotValidf("mapping of %d bytes", size)
	}
	if ps := uint64(os.Getpagesize()); base%ps != 0 {
		return nil, errors.NotValidf("base %#x not aligned to %d bytes pages", base, ps)
	}
	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Annotate(err, "epdc: opening /dev/mem")
	}
	defer unix.Close(fd)
	b, err := unix.Mmap(fd, int64(base), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Annotatef(err, "epdc: mapping %d bytes at %#x", size, base)
	}
	return &Mem{b: b, phys: base}, nil
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}
