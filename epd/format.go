// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"fmt"
	"runtime"
)

// Pixels are packed most significant bits first. A pixel value of 0 is
// white, the maximum value for the depth is black.

type stretchKey struct {
	src, dst int
}

// stretchTables maps every nybble to its expansion for each supported pair
// of depths.
var stretchTables = buildStretchTables()

func buildStretchTables() map[stretchKey]*[16][]byte {
	tables := map[stretchKey]*[16][]byte{}
	depths := []int{1, 2, 4, 8}
	for _, s := range depths {
		for _, d := range depths {
			if s >= d {
				continue
			}
			t := new([16][]byte)
			for n := range t {
				t[n] = expandNybble(byte(n), s, d)
			}
			tables[stretchKey{s, d}] = t
		}
	}
	return tables
}

func expandNybble(n byte, src, dst int) []byte {
	pixels := 4 / src
	out := make([]byte, pixels*dst/8)
	scale := byte((1<<uint(dst) - 1) / (1<<uint(src) - 1))
	for p := 0; p < pixels; p++ {
		v := n >> uint(4-src*(p+1)) & byte(1<<uint(src)-1)
		putPixel(out, p, dst, v*scale)
	}
	return out
}

// StretchNybble expands the pixels held in the low 4 bits of n from srcBPP
// to dstBPP. Zero expands to all zero bytes and 0xF to all 0xFF bytes.
func StretchNybble(n byte, srcBPP, dstBPP int) ([]byte, error) {
	t, ok := stretchTables[stretchKey{srcBPP, dstBPP}]
	if !ok {
		return nil, fmt.Errorf("epd: cannot stretch %dbpp to %dbpp", srcBPP, dstBPP)
	}
	return append([]byte(nil), t[n&0xF]...), nil
}

// Stretch converts packed pixels in src from srcBPP to dstBPP into dst.
func Stretch(dst, src []byte, srcBPP, dstBPP int) error {
	if srcBPP == dstBPP {
		if len(dst) < len(src) {
			return fmt.Errorf("epd: stretch destination too short: %d < %d", len(dst), len(src))
		}
		copy(dst, src)
		return nil
	}
	t, ok := stretchTables[stretchKey{srcBPP, dstBPP}]
	if !ok {
		return fmt.Errorf("epd: cannot stretch %dbpp to %dbpp", srcBPP, dstBPP)
	}
	if want := len(src) * dstBPP / srcBPP; len(dst) < want {
		return fmt.Errorf("epd: stretch destination too short: %d < %d", len(dst), want)
	}
	o := 0
	for _, b := range src {
		o += copy(dst[o:], t[b>>4])
		o += copy(dst[o:], t[b&0xF])
	}
	return nil
}

// GrayRamp fills buf with a left to right ramp from white to black using
// every level of info.BPP.
func GrayRamp(buf []byte, info *DisplayInfo) error {
	stride := info.Stride()
	if len(buf) < stride*info.Height {
		return fmt.Errorf("epd: ramp buffer too short: %d < %d", len(buf), stride*info.Height)
	}
	levels := int(info.maxValue()) + 1
	for y := 0; y < info.Height; y++ {
		row := buf[y*stride : (y+1)*stride]
		for x := 0; x < info.Width; x++ {
			putPixel(row, x, info.BPP, byte(x*levels/info.Width))
		}
		runtime.Gosched()
	}
	return nil
}

// Invert flips every bit of p.
func Invert(p []byte) {
	for i := range p {
		p[i] = ^p[i]
	}
}

func putPixel(row []byte, x, bpp int, v byte) {
	ppb := 8 / bpp
	shift := uint(8 - bpp*(x%ppb+1))
	mask := byte(1<<uint(bpp)-1) << shift
	i := x / ppb
	row[i] = row[i]&^mask | v<<shift&mask
}

func pixelAt(row []byte, x, bpp int) byte {
	ppb := 8 / bpp
	shift := uint(8 - bpp*(x%ppb+1))
	return row[x/ppb] >> shift & byte(1<<uint(bpp)-1)
}

// grayToValue maps an 8 bit luminance to a pixel value.
func grayToValue(y uint8, bpp int) byte {
	top := 1<<uint(bpp) - 1
	return byte(top - (int(y)*top+127)/255)
}

// valueToGray maps a pixel value back to an 8 bit luminance.
func valueToGray(v byte, bpp int) uint8 {
	top := 1<<uint(bpp) - 1
	return uint8(255 - int(v)*255/top)
}
