package iox

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func isGzip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

// OpenAuto opens path for reading, transparently decompressing .gz files.
func OpenAuto(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !isGzip(path) {
		return f, nil
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readCloser{Reader: gr, closers: []io.Closer{gr, f}}, nil
}

// CreateAuto creates path for writing, transparently compressing .gz files.
func CreateAuto(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !isGzip(path) {
		return f, nil
	}
	gw := gzip.NewWriter(f)
	return &writeCloser{Writer: gw, closers: []io.Closer{gw, f}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error { return closeAll(r.closers) }

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

func (w *writeCloser) Close() error { return closeAll(w.closers) }

// closeAll closes in order; first error wins.
func closeAll(cs []io.Closer) error {
	var err error
	for _, c := range cs {
		if e := c.Close(); err == nil && e != nil {
			err = e
		}
	}
	return err
}
