// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package epdc

import "github.com/juju/errors"

// OpenMem is only supported on linux.
func OpenMem(base uint64, size int) (*Mem, error) {
	return nil, errors.NotSupportedf("physical memory mapping on this OS")
}

func unmap(b []byte) error {
	return nil
}
