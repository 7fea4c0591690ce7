// Package streaming resolves the byte window served for a download request.
package streaming

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Window is an inclusive byte range of a file of Size bytes.
type Window struct {
	Start int64
	End   int64
	Size  int64
}

// Full returns the window covering the whole file. For an empty file the
// window is empty and End is -1.
func Full(size int64) Window {
	return Window{Start: 0, End: size - 1, Size: size}
}

// Length is the number of bytes in the window.
func (w Window) Length() int64 {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start + 1
}

// Partial reports whether the window is smaller than the file.
func (w Window) Partial() bool {
	return w.Size > 0 && (w.Start != 0 || w.End != w.Size-1)
}

// ContentRange formats the Content-Range header value.
func (w Window) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", w.Start, w.End, w.Size)
}

// Resolve turns an optional Range header into the window to serve. It never
// rejects a request: anything it cannot honour falls back to the full file.
//
// Supported forms are "bytes=A-B", "bytes=A-" and "bytes=-N". An end past the
// file is clamped to the last byte. Multiple ranges are not supported.
func Resolve(header string, size int64) Window {
	full := Full(size)
	if header == "" || size <= 0 {
		return full
	}

	rng, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(rng, ",") {
		return full
	}
	first, last, ok := strings.Cut(strings.TrimSpace(rng), "-")
	if !ok {
		return full
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	var start, end int64
	switch {
	case first == "" && last == "":
		return full
	case first == "":
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return full
		}
		start, end = max(size-n, 0), size-1
	default:
		s, err := strconv.ParseInt(first, 10, 64)
		if err != nil || s < 0 {
			return full
		}
		start, end = s, size-1
		if last != "" {
			e, err := strconv.ParseInt(last, 10, 64)
			if err != nil || e < 0 {
				return full
			}
			end = min(e, size-1)
		}
	}

	if start > end {
		return full
	}
	return Window{Start: start, End: end, Size: size}
}

// WriteHeaders sets the length and range headers for w on h and returns the
// status code to respond with.
func WriteHeaders(h http.Header, w Window) int {
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(w.Length(), 10))
	if w.Partial() {
		h.Set("Content-Range", w.ContentRange())
		return http.StatusPartialContent
	}
	return http.StatusOK
}
