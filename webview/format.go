// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package webview

import (
	"fmt"

	"github.com/juju/errors"
)

// Format is the image encoding sent to clients.
type Format int

// Image formats.
const (
	PNG Format = iota
	JPEG
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case JPEG:
		return "jpeg"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Set implements the flag.Value interface.
func (f *Format) Set(s string) error {
	switch s {
	case "png":
		*f = PNG
	case "jpg", "jpeg":
		*f = JPEG
	default:
		return errors.NotValidf("image format %q", s)
	}
	return nil
}

func (f Format) mimeType() string {
	switch f {
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	}
	return "application/octet-stream"
}
