// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package epdc drives e-paper display controllers attached through a memory
// mapped host interface with a Broadsheet style command set.
//
// The host interface exposes a command register, a parameter port, a data
// port for programmed I/O and a bus master DMA engine that reads or writes a
// physically contiguous framebuffer. The end of a DMA frame is signalled on a
// GPIO interrupt line.
//
// Controller registers are reached indirectly with the RD_REG and WR_REG
// commands.
package epdc
