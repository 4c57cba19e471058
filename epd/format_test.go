// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStretchNybbleEndpoints(t *testing.T) {
	for _, src := range []int{1, 2, 4} {
		for _, dst := range []int{2, 4, 8} {
			if src >= dst {
				continue
			}
			t.Run(fmt.Sprintf("%d-%d", src, dst), func(t *testing.T) {
				n := 4 / src * dst / 8
				lo, err := StretchNybble(0, src, dst)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(lo, make([]byte, n)) {
					t.Errorf("StretchNybble(0) = %#v", lo)
				}
				hi, err := StretchNybble(0xF, src, dst)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(hi, bytes.Repeat([]byte{0xFF}, n)) {
					t.Errorf("StretchNybble(0xF) = %#v", hi)
				}
			})
		}
	}
	if _, err := StretchNybble(1, 8, 1); err == nil {
		t.Error("StretchNybble(8 to 1) succeeded")
	}
}

func TestStretch(t *testing.T) {
	for _, tc := range []struct {
		src      []byte
		from, to int
		want     []byte
	}{
		{[]byte{0xA0}, 1, 8, []byte{0xFF, 0, 0xFF, 0, 0, 0, 0, 0}},
		{[]byte{0xD2}, 2, 4, []byte{0xF5, 0x0A}},
		{[]byte{0x81}, 1, 2, []byte{0xC0, 0x03}},
		{[]byte{0x3C}, 4, 8, []byte{0x33, 0xCC}},
		{[]byte{0x12, 0x34}, 2, 2, []byte{0x12, 0x34}},
	} {
		t.Run(fmt.Sprintf("%d-%d", tc.from, tc.to), func(t *testing.T) {
			got := make([]byte, len(tc.want))
			if err := Stretch(got, tc.src, tc.from, tc.to); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Errorf("Stretch() difference (-got +want):\n%s", diff)
			}
		})
	}
	if err := Stretch(make([]byte, 1), []byte{0xFF}, 1, 8); err == nil {
		t.Error("Stretch() into a short buffer succeeded")
	}
}

func TestGrayRamp(t *testing.T) {
	info := &DisplayInfo{Width: 16, Height: 2, BPP: 1, Align: 1}
	buf := make([]byte, 4)
	if err := GrayRamp(buf, info); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(buf, []byte{0x00, 0xFF, 0x00, 0xFF}); diff != "" {
		t.Errorf("GrayRamp() difference (-got +want):\n%s", diff)
	}

	info = &DisplayInfo{Width: 4, Height: 1, BPP: 4, Align: 1}
	buf = make([]byte, 2)
	if err := GrayRamp(buf, info); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(buf, []byte{0x04, 0x8C}); diff != "" {
		t.Errorf("GrayRamp() difference (-got +want):\n%s", diff)
	}
	if err := GrayRamp(buf[:1], info); err == nil {
		t.Error("GrayRamp() into a short buffer succeeded")
	}
}

func TestGrayValue(t *testing.T) {
	for _, bpp := range []int{1, 2, 4, 8} {
		top := byte(1<<uint(bpp) - 1)
		if v := grayToValue(255, bpp); v != 0 {
			t.Errorf("%dbpp: white = %d", bpp, v)
		}
		if v := grayToValue(0, bpp); v != top {
			t.Errorf("%dbpp: black = %d", bpp, v)
		}
		for v := byte(0); v <= top; v++ {
			if got := grayToValue(valueToGray(v, bpp), bpp); got != v {
				t.Errorf("%dbpp: %d round trips to %d", bpp, v, got)
			}
			if v == top {
				break
			}
		}
	}
}

func TestPhysPoint(t *testing.T) {
	const w, h = 16, 8
	for _, o := range []Orientation{Portrait, Landscape, PortraitUpsideDown, LandscapeUpsideDown} {
		info := &DisplayInfo{Width: w, Height: h, Orientation: o}
		b := logicalBounds(info)
		seen := map[image.Point]bool{}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				px, py := physPoint(o, w, h, x, y)
				p := image.Pt(px, py)
				if !p.In(image.Rect(0, 0, w, h)) || seen[p] {
					t.Fatalf("%s: (%d, %d) maps to %v", o, x, y, p)
				}
				seen[p] = true
			}
		}
		r := image.Rect(1, 2, 4, 3)
		if got := physRect(o, w, h, r); got.Dx()*got.Dy() != r.Dx()*r.Dy() {
			t.Errorf("%s: physRect(%v) = %v", o, r, got)
		}
	}
}

func TestPollUntil(t *testing.T) {
	ctx := context.Background()
	n := 0
	err := pollUntil(ctx, time.Second, time.Millisecond, func() (bool, error) {
		n++
		return n == 3, nil
	})
	if err != nil || n != 3 {
		t.Errorf("pollUntil() = %v after %d calls", err, n)
	}

	err = pollUntil(ctx, 5*time.Millisecond, time.Millisecond, func() (bool, error) { return false, nil })
	if !errors.Is(err, ErrHardwareTimeout) {
		t.Errorf("pollUntil() = %v, want %v", err, ErrHardwareTimeout)
	}

	errGone := errors.New("gone")
	err = pollUntil(ctx, time.Second, time.Millisecond, func() (bool, error) { return false, errGone })
	if !errors.Is(err, errGone) {
		t.Errorf("pollUntil() = %v, want %v", err, errGone)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = pollUntil(cctx, time.Second, time.Millisecond, func() (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("pollUntil() = %v, want %v", err, context.Canceled)
	}

	// A zero timeout still samples once.
	err = pollUntil(ctx, 0, time.Millisecond, func() (bool, error) { return true, nil })
	if err != nil {
		t.Errorf("pollUntil() = %v", err)
	}
}
