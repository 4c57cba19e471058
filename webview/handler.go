// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package webview

import (
	"mime"
	"net/http"
	"net/textproto"
)

type client struct {
	refresh   chan struct{}
	terminate chan struct{}
}

// ServeHTTP answers GET requests with a never ending stream of images, one
// per mirror update.
func (d *Dev) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	f := d.format
	if v := r.URL.Query().Get("format"); v != "" {
		if err := f.Set(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	pw := newPartWriter(w)
	w.Header().Set("Content-Type", mime.FormatMediaType("multipart/x-mixed-replace", map[string]string{
		"boundary": pw.boundary,
	}))

	c := &client{
		refresh:   make(chan struct{}, 1),
		terminate: make(chan struct{}, 1),
	}
	d.mu.Lock()
	d.clients[c] = struct{}{}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.clients, c)
		d.mu.Unlock()
	}()
	d.log.Debug("webview client", "remote", r.RemoteAddr, "format", f)

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", f.mimeType())
	h.Set("Content-Transfer-Encoding", "binary")
	for {
		b, err := d.snapshot(f)
		if err == nil {
			err = pw.writeFrame(h, b)
		}
		if err != nil {
			// An image stream has no way to carry an error to the client.
			d.log.Debug("webview client gone", "remote", r.RemoteAddr, "err", err)
			return
		}
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		select {
		case <-c.refresh:
		case <-c.terminate:
			return
		case <-r.Context().Done():
			return
		}
	}
}
