// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ssd1675 drives SSD1675 and SSD1680 class e-paper controllers over
// SPI as an epd controller generation.
//
// The controllers have two RAM planes. The black/white plane holds the image
// to show and the red plane holds the previous one, which partial refreshes
// compare against. Dev keeps the red plane in sync after every refresh.
//
// Datasheets
//
// https://www.waveshare.com/w/upload/d/d5/2.13inch_e-Paper_Specification.pdf
//
// Product page:
//
// 2.13 Inch version 2: https://www.waveshare.com/wiki/2.13inch_e-Paper_HAT
package ssd1675
