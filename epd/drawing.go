// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

var _ display.Drawer = &Dev{}

// ColorModel implements display.Drawer.
//
// 1bpp panels use image1bit.BitModel, deeper ones color.GrayModel.
func (d *Dev) ColorModel() color.Model {
	d.infoMu.RLock()
	defer d.infoMu.RUnlock()
	if d.info.BPP == 1 {
		return image1bit.BitModel
	}
	return color.GrayModel
}

// Bounds implements display.Drawer. It is the panel rectangle as seen in the
// current orientation.
func (d *Dev) Bounds() image.Rectangle {
	info := d.Info()
	return logicalBounds(&info)
}

// Draw implements display.Drawer.
//
// The image is converted into the framebuffer, rotated to the current
// orientation, and the covered area is sent with a partial refresh. The
// framebuffer is left untouched when another operation holds the panel.
func (d *Dev) Draw(dstRect image.Rectangle, src image.Image, sp image.Point) error {
	info := d.Info()
	r := dstRect.Intersect(logicalBounds(&info))
	if r.Empty() {
		return nil
	}
	pr, err := info.AlignBounds(physRect(info.Orientation, info.Width, info.Height, r))
	if err != nil {
		return err
	}
	ctx := context.Background()
	a := &UpdateArea{Rect: pr, Effect: EffectPartial}
	return d.runCommand(ctx, CmdUpdateArea, a, func() error {
		return d.updateArea(ctx, a, func() {
			d.compose(&info, r, dstRect, src, sp)
		})
	})
}

// compose converts the part r of src into the framebuffer.
func (d *Dev) compose(info *DisplayInfo, r, dstRect image.Rectangle, src image.Image, sp image.Point) {
	stride := info.Stride()
	bits, isBits := src.(*image1bit.VerticalLSB)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sx, sy := sp.X+x-dstRect.Min.X, sp.Y+y-dstRect.Min.Y
			var g uint8
			if isBits {
				if bits.BitAt(sx, sy) {
					g = 0xFF
				}
			} else {
				g = color.GrayModel.Convert(src.At(sx, sy)).(color.Gray).Y
			}
			px, py := physPoint(info.Orientation, info.Width, info.Height, x, y)
			putPixel(d.fb[py*stride:], px, info.BPP, grayToValue(g, info.BPP))
		}
	}
}

func logicalBounds(info *DisplayInfo) image.Rectangle {
	switch info.Orientation {
	case Landscape, LandscapeUpsideDown:
		return image.Rect(0, 0, info.Height, info.Width)
	}
	return info.Bounds()
}

// physPoint maps a logical pixel to the framebuffer of a w by h panel.
func physPoint(o Orientation, w, h, x, y int) (int, int) {
	switch o {
	case Landscape:
		return w - 1 - y, x
	case PortraitUpsideDown:
		return w - 1 - x, h - 1 - y
	case LandscapeUpsideDown:
		return y, h - 1 - x
	}
	return x, y
}

// physRect maps a non-empty logical rectangle to the framebuffer.
func physRect(o Orientation, w, h int, r image.Rectangle) image.Rectangle {
	x0, y0 := physPoint(o, w, h, r.Min.X, r.Min.Y)
	x1, y1 := physPoint(o, w, h, r.Max.X-1, r.Max.Y-1)
	p := image.Rect(x0, y0, x1, y1)
	p.Max = p.Max.Add(image.Pt(1, 1))
	return p
}
