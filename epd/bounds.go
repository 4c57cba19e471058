// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import "image"

// CheckBounds returns the set of checks r fails against the panel geometry.
// Zero means r is acceptable.
func (i *DisplayInfo) CheckBounds(r image.Rectangle) BoundsFailure {
	var f BoundsFailure
	if r.Min.X < 0 || r.Min.X >= i.Width || r.Min.X >= r.Max.X {
		f |= BoundsX1
	}
	if r.Min.Y < 0 || r.Min.Y >= i.Height || r.Min.Y >= r.Max.Y {
		f |= BoundsY1
	}
	if r.Max.X <= 0 || r.Max.X > i.Width {
		f |= BoundsX2
	}
	if r.Max.Y <= 0 || r.Max.Y > i.Height {
		f |= BoundsY2
	}
	if u := i.AlignUnit(); mod(r.Min.X, u) != 0 || mod(r.Dx(), u) != 0 {
		f |= BoundsAlign
	}
	return f
}

// BoundsAcceptable reports whether r is in range and aligned.
func (i *DisplayInfo) BoundsAcceptable(r image.Rectangle) bool {
	return i.CheckBounds(r) == 0
}

// AlignBounds grows r horizontally to the pixel alignment unit. It never
// shrinks r. The result is validated again; a rectangle that is still not
// acceptable yields a *BoundsError.
func (i *DisplayInfo) AlignBounds(r image.Rectangle) (image.Rectangle, error) {
	u := i.AlignUnit()
	r.Min.X -= mod(r.Min.X, u)
	if m := mod(r.Max.X, u); m != 0 {
		r.Max.X += u - m
	}
	if f := i.CheckBounds(r); f != 0 {
		return r, &BoundsError{Rect: r, Failure: f}
	}
	return r, nil
}

// mod is the floored modulo, so negative coordinates round toward -inf.
func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
