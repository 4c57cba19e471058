// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

var (
	// ErrInvalidBounds is returned when an update rectangle fails the range
	// or alignment checks. The concrete error is a *BoundsError.
	ErrInvalidBounds = errors.New("epd: invalid bounds")
	// ErrBusy is returned when another operation holds the gate.
	ErrBusy = errors.New("epd: busy")
	// ErrPowerLocked is returned when the panel is in a lockout power level.
	ErrPowerLocked = errors.New("epd: power locked")
	// ErrHardwareTimeout is returned when the ready line or a DMA completion
	// did not show up in time. The device stays usable.
	ErrHardwareTimeout = errors.New("epd: hardware timeout")
	// ErrBadArgument is returned for a command with a malformed argument.
	ErrBadArgument = errors.New("epd: bad argument")
)

// BoundsFailure is a set of failed bounds checks.
type BoundsFailure uint8

// Individual bounds checks. A rectangle may fail several at once.
const (
	BoundsX1 BoundsFailure = 1 << iota
	BoundsY1
	BoundsX2
	BoundsY2
	BoundsAlign
)

func (f BoundsFailure) String() string {
	if f == 0 {
		return "ok"
	}
	var names []string
	for _, b := range []struct {
		bit  BoundsFailure
		name string
	}{
		{BoundsX1, "x1"},
		{BoundsY1, "y1"},
		{BoundsX2, "x2"},
		{BoundsY2, "y2"},
		{BoundsAlign, "align"},
	} {
		if f&b.bit != 0 {
			names = append(names, b.name)
		}
	}
	return strings.Join(names, "|")
}

// BoundsError describes a rejected rectangle.
type BoundsError struct {
	Rect    image.Rectangle
	Failure BoundsFailure
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("epd: invalid bounds %v (%s)", e.Rect, e.Failure)
}

// Is makes errors.Is(err, ErrInvalidBounds) hold for a *BoundsError.
func (e *BoundsError) Is(target error) bool {
	return target == ErrInvalidBounds
}
