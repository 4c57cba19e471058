// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !unix

package fbmap

func alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func free([]byte) error {
	return nil
}
