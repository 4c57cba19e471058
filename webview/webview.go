// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package webview serves the content of an e-paper panel over HTTP.
//
// Each client gets the image last sent to the panel, then a new one after
// every update, as a "multipart/x-mixed-replace" stream of PNG or JPEG
// images (MJPEG, as used by IP cameras). Browsers render such a stream in a
// plain <img> tag.
//
// Clients pick the format with the "format" URL parameter ("?format=jpeg").
package webview

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/juju/errors"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// Opts for a Dev.
type Opts struct {
	// Format is used when the client does not ask for one.
	Format Format
	// Logger defaults to discarding everything.
	Logger *slog.Logger
}

// Source is what a Dev needs from a display.
type Source interface {
	Subscribe(n int) (<-chan epd.Event, func())
	Mirror() *image.Gray
}

// Dev is an http.Handler streaming the mirror of a display.
type Dev struct {
	src    Source
	format Format
	log    *slog.Logger

	mu      sync.Mutex
	frame   *image.Gray
	encoded map[Format][]byte
	clients map[*client]struct{}
}

var _ http.Handler = (*Dev)(nil)

// New returns a Dev serving the current content of src. Call Follow to keep
// it up to date.
func New(src Source, opts *Opts) *Dev {
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dev{
		src:     src,
		format:  opts.Format,
		log:     l,
		frame:   src.Mirror(),
		encoded: map[Format][]byte{},
		clients: map[*client]struct{}{},
	}
}

func (d *Dev) String() string {
	return "WebView"
}

// Halt implements conn.Resource. It ends every client stream.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.clients {
		select {
		case c.terminate <- struct{}{}:
		default:
		}
	}
	return nil
}

// Follow takes a new frame after every mirror update until ctx is canceled.
func (d *Dev) Follow(ctx context.Context) error {
	events, cancel := d.src.Subscribe(4)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			for n := len(events); n > 0; n-- {
				<-events
			}
			d.update(d.src.Mirror())
		}
	}
}

// update replaces the frame and wakes up the clients.
func (d *Dev) update(img *image.Gray) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = img
	d.encoded = map[Format][]byte{}
	for c := range d.clients {
		select {
		case c.refresh <- struct{}{}:
		default:
		}
	}
}

// snapshot returns the current frame encoded in f. The slice is shared and
// must not be modified.
func (d *Dev) snapshot(f Format) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.encoded[f]; ok {
		return b, nil
	}
	var buf bytes.Buffer
	var err error
	switch f {
	case PNG:
		err = pngEncoder.Encode(&buf, d.frame)
	case JPEG:
		err = jpeg.Encode(&buf, d.frame, &jpeg.Options{Quality: 95})
	default:
		err = errors.NotSupportedf("format %s", f)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "webview: encoding %s", f)
	}
	d.encoded[f] = buf.Bytes()
	return buf.Bytes(), nil
}

// pngEncoder favors speed; the images are mostly flat.
var pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}
