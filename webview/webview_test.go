// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package webview

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/epdhal/epd"
)

func TestFormat(t *testing.T) {
	data := []struct {
		in   string
		want Format
		mime string
	}{
		{"png", PNG, "image/png"},
		{"jpg", JPEG, "image/jpeg"},
		{"jpeg", JPEG, "image/jpeg"},
	}
	for _, line := range data {
		var f Format
		if err := f.Set(line.in); err != nil {
			t.Fatal(err)
		}
		if f != line.want || f.mimeType() != line.mime {
			t.Fatalf("%q: %s %s", line.in, f, f.mimeType())
		}
	}
	var f Format
	if f.Set("gif") == nil {
		t.Fatal("expected error")
	}
	if s := Format(7).String(); s != "Format(7)" {
		t.Fatal(s)
	}
	if s := Format(7).mimeType(); s != "application/octet-stream" {
		t.Fatal(s)
	}
}

func TestWriteFrame(t *testing.T) {
	buf := bytes.Buffer{}
	p := newPartWriter(&buf)
	p.boundary = "b"
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "image/png")
	if err := p.writeFrame(h, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := p.writeFrame(h, []byte("second")); err != nil {
		t.Fatal(err)
	}
	want := "--b\r\nContent-Length: 3\r\nContent-Type: image/png\r\n\r\none\r\n--b\r\n" +
		"Content-Length: 6\r\nContent-Type: image/png\r\n\r\nsecond\r\n--b\r\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestBoundary(t *testing.T) {
	a, b := newPartWriter(io.Discard), newPartWriter(io.Discard)
	if len(a.boundary) != 60 || a.boundary == b.boundary {
		t.Fatal(a.boundary, b.boundary)
	}
}

func TestStream(t *testing.T) {
	for _, format := range []string{"", "jpeg"} {
		format := format
		t.Run("format="+format, func(t *testing.T) {
			src := newFakeSource(8, 4)
			d := New(src, &Opts{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			followed := make(chan error)
			go func() { followed <- d.Follow(ctx) }()

			s := httptest.NewServer(d)
			defer s.Close()
			url := s.URL
			if format != "" {
				url += "?format=" + format
			}
			resp, err := http.Get(url)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			mt, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
			if err != nil || mt != "multipart/x-mixed-replace" {
				t.Fatal(mt, err)
			}
			mr := multipart.NewReader(resp.Body, params["boundary"])

			img := readImage(t, mr)
			if img.Bounds() != image.Rect(0, 0, 8, 4) {
				t.Fatal(img.Bounds())
			}
			if y := color.GrayModel.Convert(img.At(1, 1)).(color.Gray).Y; y > 0x10 {
				t.Fatalf("expected black, got %#x", y)
			}

			src.set(0xFF)
			img = readImage(t, mr)
			if y := color.GrayModel.Convert(img.At(1, 1)).(color.Gray).Y; y < 0xF0 {
				t.Fatalf("expected white, got %#x", y)
			}

			if err := d.Halt(); err != nil {
				t.Fatal(err)
			}
			if _, err := mr.NextPart(); err == nil {
				t.Fatal("expected the stream to end")
			}
			cancel()
			if err := <-followed; err != context.Canceled {
				t.Fatal(err)
			}
		})
	}
}

func TestServeHTTPErrors(t *testing.T) {
	d := New(newFakeSource(8, 4), &Opts{})
	for _, line := range []struct {
		method, target string
		want           int
	}{
		{http.MethodPost, "/", http.StatusMethodNotAllowed},
		{http.MethodGet, "/?format=gif", http.StatusBadRequest},
	} {
		w := httptest.NewRecorder()
		d.ServeHTTP(w, httptest.NewRequest(line.method, line.target, nil))
		if w.Code != line.want {
			t.Fatalf("%s %s: %d", line.method, line.target, w.Code)
		}
	}
}

func TestSnapshotCache(t *testing.T) {
	d := New(newFakeSource(8, 4), &Opts{Format: JPEG})
	a, err := d.snapshot(PNG)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := d.snapshot(PNG)
	if &a[0] != &b[0] {
		t.Fatal("expected the cached encoding")
	}
	d.update(image.NewGray(image.Rect(0, 0, 8, 4)))
	if len(d.encoded) != 0 {
		t.Fatal("cache not dropped")
	}
	if _, err := d.snapshot(Format(9)); err == nil {
		t.Fatal("expected error")
	}
}

//

func readImage(t *testing.T, mr *multipart.Reader) image.Image {
	t.Helper()
	p, err := mr.NextPart()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	b, err := io.ReadAll(p)
	if err != nil {
		t.Fatal(err)
	}
	var img image.Image
	if ct := p.Header.Get("Content-Type"); strings.HasSuffix(ct, "png") {
		img, err = png.Decode(bytes.NewReader(b))
	} else {
		img, err = jpeg.Decode(bytes.NewReader(b))
	}
	if err != nil {
		t.Fatal(err)
	}
	return img
}

type fakeSource struct {
	mu     sync.Mutex
	img    *image.Gray
	events chan epd.Event
}

func newFakeSource(w, h int) *fakeSource {
	return &fakeSource{img: image.NewGray(image.Rect(0, 0, w, h)), events: make(chan epd.Event, 1)}
}

func (f *fakeSource) set(y uint8) {
	f.mu.Lock()
	img := image.NewGray(f.img.Bounds())
	for i := range img.Pix {
		img.Pix[i] = y
	}
	f.img = img
	f.mu.Unlock()
	f.events <- epd.Event{Full: true}
}

func (f *fakeSource) Subscribe(n int) (<-chan epd.Event, func()) {
	return f.events, func() {}
}

func (f *fakeSource) Mirror() *image.Gray {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.img
}
