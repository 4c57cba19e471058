// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"fmt"
	"image"
)

// bufferLen is the length of a caller buffer covering r: rows of
// ceil(Dx*bpp/8) bytes, the first pixel of each row at the top of byte 0.
func bufferLen(r image.Rectangle, bpp int) int {
	return (r.Dx()*bpp + 7) / 8 * r.Dy()
}

// updateArea sends a to the panel. compose, when not nil, runs first with the
// gate held to fill the framebuffer.
func (d *Dev) updateArea(ctx context.Context, a *UpdateArea, compose func()) error {
	if !a.Effect.valid() {
		return fmt.Errorf("%w: effect %s", ErrBadArgument, a.Effect)
	}
	info := d.Info()
	r, err := d.checkArea(&info, a)
	if err != nil {
		return err
	}
	if a.Buffer != nil {
		if want := bufferLen(a.Rect, info.BPP); len(a.Buffer) != want {
			return fmt.Errorf("%w: buffer is %d bytes, %s needs %d", ErrBadArgument, len(a.Buffer), a.Rect, want)
		}
	}
	req := UpdateArea{Rect: r, Effect: a.Effect, Buffer: a.Buffer}
	return d.bracket(ctx, "update area", func() error {
		if compose != nil {
			compose()
		}
		if req.Buffer != nil && r != a.Rect {
			req.Buffer = d.growBuffer(&info, a.Rect, r, a.Buffer)
		}
		if req.Effect == EffectFlash {
			return d.flashArea(ctx, &info, &req)
		}
		return d.writeArea(ctx, &info, &req)
	})
}

// checkArea validates a.Rect and applies the alignment policy.
func (d *Dev) checkArea(info *DisplayInfo, a *UpdateArea) (image.Rectangle, error) {
	f := info.CheckBounds(a.Rect)
	if f == 0 {
		return a.Rect, nil
	}
	if f != BoundsAlign {
		return a.Rect, &BoundsError{Rect: a.Rect, Failure: f}
	}
	switch d.opts.Misaligned {
	case AlignGrow:
	case AlignAuto:
		if a.Buffer != nil {
			return a.Rect, &BoundsError{Rect: a.Rect, Failure: f}
		}
	default:
		return a.Rect, &BoundsError{Rect: a.Rect, Failure: f}
	}
	r, err := info.AlignBounds(a.Rect)
	if err != nil {
		return a.Rect, err
	}
	d.log.Debug("area grown to alignment", "from", a.Rect, "to", r)
	return r, nil
}

// growBuffer builds a buffer for grown from the framebuffer, overlaid with
// buf covering orig.
func (d *Dev) growBuffer(info *DisplayInfo, orig, grown image.Rectangle, buf []byte) []byte {
	stride := info.Stride()
	rowBytes := grown.Dx() * info.BPP / 8
	srcBytes := (orig.Dx()*info.BPP + 7) / 8
	xoff := grown.Min.X * info.BPP / 8
	out := make([]byte, rowBytes*grown.Dy())
	for y := grown.Min.Y; y < grown.Max.Y; y++ {
		row := out[(y-grown.Min.Y)*rowBytes:][:rowBytes]
		copy(row, d.fb[y*stride+xoff:])
		src := buf[(y-orig.Min.Y)*srcBytes:][:srcBytes]
		for x := orig.Min.X; x < orig.Max.X; x++ {
			putPixel(row, x-grown.Min.X, info.BPP, pixelAt(src, x-orig.Min.X, info.BPP))
		}
	}
	return out
}

// flashArea draws the inverted area with a full refresh, then the area
// itself with a partial refresh.
func (d *Dev) flashArea(ctx context.Context, info *DisplayInfo, req *UpdateArea) error {
	if req.Buffer != nil {
		req.Buffer = append([]byte(nil), req.Buffer...)
	}
	d.invertArea(info, req)
	full := *req
	full.Effect = EffectFull
	err := d.writeArea(ctx, info, &full)
	d.invertArea(info, req)
	if err != nil {
		return err
	}
	part := *req
	part.Effect = EffectPartial
	return d.writeArea(ctx, info, &part)
}

func (d *Dev) invertArea(info *DisplayInfo, req *UpdateArea) {
	if req.Buffer != nil {
		Invert(req.Buffer)
		return
	}
	stride := info.Stride()
	rowBytes := req.Rect.Dx() * info.BPP / 8
	xoff := req.Rect.Min.X * info.BPP / 8
	for y := req.Rect.Min.Y; y < req.Rect.Max.Y; y++ {
		o := y*stride + xoff
		Invert(d.fb[o : o+rowBytes])
	}
}

// writeArea updates the mirror, sends the area and refreshes it.
func (d *Dev) writeArea(ctx context.Context, info *DisplayInfo, req *UpdateArea) error {
	d.mirror.updateArea(info, d.fb, req)
	d.callHook(ctx, HookInSituBegin, CmdUpdateArea, req)
	defer d.callHook(ctx, HookInSituEnd, CmdUpdateArea, req)
	data, off, contiguous := d.areaBytes(info, req)
	if err := d.eng.beginArea(ctx, Write, req.Rect); err != nil {
		return err
	}
	dma := contiguous && d.opts.NeedsDMA(info, req.Rect)
	if err := d.eng.transfer(ctx, Write, data, off, dma); err != nil {
		return err
	}
	if err := d.eng.endArea(ctx); err != nil {
		return err
	}
	if req.Effect == EffectNone {
		return nil
	}
	return d.eng.refresh(ctx, req.Rect, req.Effect)
}

// areaBytes returns the bytes to send for req. Full width areas of the
// framebuffer are sent in place, and only those are eligible for DMA.
func (d *Dev) areaBytes(info *DisplayInfo, req *UpdateArea) ([]byte, int, bool) {
	if req.Buffer != nil {
		return req.Buffer, 0, false
	}
	stride := info.Stride()
	rowBytes := req.Rect.Dx() * info.BPP / 8
	if rowBytes == stride {
		off := req.Rect.Min.Y * stride
		return d.fb[off : req.Rect.Max.Y*stride], off, true
	}
	xoff := req.Rect.Min.X * info.BPP / 8
	buf := d.scratch[:rowBytes*req.Rect.Dy()]
	for y := req.Rect.Min.Y; y < req.Rect.Max.Y; y++ {
		o := y*stride + xoff
		copy(buf[(y-req.Rect.Min.Y)*rowBytes:], d.fb[o:o+rowBytes])
	}
	return buf, 0, false
}
