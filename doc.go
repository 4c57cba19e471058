// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package epdhal is a container for the e-paper display layer and its
// controller drivers.
//
// Package epd holds the device independent part: power management, the
// locking gate, the framebuffer mirror and the transfer engine. Packages
// ssd1675 and epdc implement epd.ControllerOps for actual controllers.
package epdhal
