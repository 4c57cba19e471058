// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package epd is a hardware abstraction layer for electrophoretic (e-ink)
// displays.
//
// A Dev turns "update this rectangle" and "update the whole screen" requests
// into transactions against a display controller. The controller itself is
// reached through a ControllerOps implementation, one per hardware
// generation; see packages ssd1675 and epdc.
//
// Every operation touching the hardware runs inside a bracket: the gate is
// taken (a second caller gets ErrBusy instead of queuing), the panel is
// powered on, the work happens, and the power level in effect before the
// bracket is restored. A timer moves an idle panel to a lower power level.
//
// Besides the framebuffer exposed through Framebuffer and Mmap, the device
// keeps a mirror of the last image sent to the panel. Restore copies it back
// after the panel was blanked. Subscribe delivers a notification per update.
//
// Datasheets
//
// Solomon Systech SSD1675:
// https://www.waveshare.com/w/upload/d/d5/2.13inch_e-Paper_Specification.pdf
package epd
