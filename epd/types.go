// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"fmt"
	"image"
)

// PowerLevel is the energy state of the panel and its controller.
//
// Levels are ordered from most to least energized, Init aside.
type PowerLevel int

// Power levels. PowerSleep and PowerOff lock the display out: no update is
// accepted until the level is raised again with SetPowerLevel.
const (
	PowerInit PowerLevel = iota
	PowerOn
	PowerStandby
	PowerBlank
	PowerSleep
	PowerOff
)

var powerNames = [...]string{"init", "on", "standby", "blank", "sleep", "off"}

func (l PowerLevel) String() string {
	if l < 0 || int(l) >= len(powerNames) {
		return fmt.Sprintf("PowerLevel(%d)", int(l))
	}
	return powerNames[l]
}

// Set sets the PowerLevel to a value represented by the string s. Set
// implements the flag.Value interface.
func (l *PowerLevel) Set(s string) error {
	for i, n := range powerNames {
		if n == s {
			*l = PowerLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown power level %q: expected one of init, on, standby, blank, sleep or off", s)
}

// Locked reports whether the level refuses display operations.
func (l PowerLevel) Locked() bool {
	return l == PowerSleep || l == PowerOff
}

func (l PowerLevel) valid() bool {
	return l >= PowerInit && l <= PowerOff
}

// Effect selects the waveform used to refresh an area.
type Effect int

// Update effects.
const (
	// EffectNone writes the controller RAM without refreshing the panel.
	EffectNone Effect = iota
	// EffectPartial only drives pixels that changed.
	EffectPartial
	// EffectFull drives every pixel, clearing ghosting.
	EffectFull
	// EffectFlash inverts the area, refreshes it fully, then partially
	// refreshes the original image.
	EffectFlash
)

var effectNames = [...]string{"none", "partial", "full", "flash"}

func (e Effect) String() string {
	if e < 0 || int(e) >= len(effectNames) {
		return fmt.Sprintf("Effect(%d)", int(e))
	}
	return effectNames[e]
}

// Set implements the flag.Value interface.
func (e *Effect) Set(s string) error {
	for i, n := range effectNames {
		if n == s {
			*e = Effect(i)
			return nil
		}
	}
	return fmt.Errorf("unknown effect %q: expected one of none, partial, full or flash", s)
}

func (e Effect) valid() bool {
	return e >= EffectNone && e <= EffectFlash
}

// Orientation is the rotation applied between logical coordinates used by
// Draw and the physical framebuffer.
type Orientation int

// Supported orientations, clockwise.
const (
	Portrait Orientation = iota
	Landscape
	PortraitUpsideDown
	LandscapeUpsideDown
)

var orientationNames = [...]string{"portrait", "landscape", "portrait-upside-down", "landscape-upside-down"}

func (o Orientation) String() string {
	if o < 0 || int(o) >= len(orientationNames) {
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
	return orientationNames[o]
}

// Set implements the flag.Value interface.
func (o *Orientation) Set(s string) error {
	for i, n := range orientationNames {
		if n == s {
			*o = Orientation(i)
			return nil
		}
	}
	return fmt.Errorf("unknown orientation %q: expected one of portrait, landscape, portrait-upside-down or landscape-upside-down", s)
}

func (o Orientation) valid() bool {
	return o >= Portrait && o <= LandscapeUpsideDown
}

// RebootBehavior is what Halt leaves on the panel.
type RebootBehavior int

// Reboot behaviors.
const (
	// RebootAsIs keeps the last image.
	RebootAsIs RebootBehavior = iota
	// RebootClear clears the panel to white.
	RebootClear
	// RebootSplash asks the hook to draw a splash screen.
	RebootSplash
)

var rebootNames = [...]string{"as-is", "clear", "splash"}

func (r RebootBehavior) String() string {
	if r < 0 || int(r) >= len(rebootNames) {
		return fmt.Sprintf("RebootBehavior(%d)", int(r))
	}
	return rebootNames[r]
}

// Set implements the flag.Value interface.
func (r *RebootBehavior) Set(s string) error {
	for i, n := range rebootNames {
		if n == s {
			*r = RebootBehavior(i)
			return nil
		}
	}
	return fmt.Errorf("unknown reboot behavior %q: expected one of as-is, clear or splash", s)
}

func (r RebootBehavior) valid() bool {
	return r >= RebootAsIs && r <= RebootSplash
}

// AlignPolicy decides what happens to an update rectangle that is in range
// but not aligned to the pixel alignment unit.
type AlignPolicy int

// Alignment policies.
const (
	// AlignAuto grows rectangles updated from the framebuffer and rejects
	// rectangles that come with their own buffer.
	AlignAuto AlignPolicy = iota
	// AlignReject always fails with ErrInvalidBounds.
	AlignReject
	// AlignGrow always grows the rectangle outward to the next boundary.
	AlignGrow
)

var alignNames = [...]string{"auto", "reject", "grow"}

func (p AlignPolicy) String() string {
	if p < 0 || int(p) >= len(alignNames) {
		return fmt.Sprintf("AlignPolicy(%d)", int(p))
	}
	return alignNames[p]
}

// Set implements the flag.Value interface.
func (p *AlignPolicy) Set(s string) error {
	for i, n := range alignNames {
		if n == s {
			*p = AlignPolicy(i)
			return nil
		}
	}
	return fmt.Errorf("unknown alignment policy %q: expected one of auto, reject or grow", s)
}

// DMARegion describes the physical memory backing the framebuffer, as seen
// by the DMA engine.
type DMARegion struct {
	PhysAddr uint64
	Size     int
}

// DisplayInfo describes the panel geometry and the framebuffer layout.
type DisplayInfo struct {
	// Physical panel size in pixels.
	Width, Height int
	// BPP is the number of bits per pixel: 1, 2, 4 or 8.
	BPP int
	// Align is the byte alignment unit of update rectangles and of Size.
	Align int
	// Size is the framebuffer length in bytes.
	Size int
	// DMA is nil when the framebuffer is not reachable by DMA.
	DMA *DMARegion

	Orientation Orientation
	// Restore is set while a restore copies the mirror back into the
	// framebuffer.
	Restore bool
}

// Stride is the length of a framebuffer row in bytes.
func (i *DisplayInfo) Stride() int {
	return i.Width * i.BPP / 8
}

// AlignUnit is the pixel alignment unit implied by BPP and Align.
func (i *DisplayInfo) AlignUnit() int {
	return i.Align * 8 / i.BPP
}

// Bounds returns the physical panel rectangle.
func (i *DisplayInfo) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.Width, i.Height)
}

func (i *DisplayInfo) maxValue() byte {
	return byte(1<<uint(i.BPP) - 1)
}

// frameSize returns ceil(w*h*bpp/8) rounded up to align.
func frameSize(w, h, bpp, align int) int {
	n := (w*h*bpp + 7) / 8
	return (n + align - 1) / align * align
}

// UpdateArea is a request to refresh a rectangle of the panel.
type UpdateArea struct {
	// Rect is (x1, y1)-(x2, y2) in physical coordinates, x2 and y2 exclusive.
	Rect   image.Rectangle
	Effect Effect
	// Buffer holds Rect.Dy() rows of Rect.Dx()*BPP/8 bytes. When nil the
	// current framebuffer contents are used.
	Buffer []byte
}
