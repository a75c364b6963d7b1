package tileutils

import (
	"bytes"
	"io"

	gziplib "github.com/klauspost/compress/gzip"
)

// Gzip is a utility function to zip up a tile for storage
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	g, err := gziplib.NewWriterLevel(&buf, gziplib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := g.Write(data); err != nil {
		return nil, err
	}
	if err := g.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsGzipped reports whether data starts with the gzip magic bytes
func IsGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// Gunzip reverses Gzip. Data without the gzip header is returned unchanged.
func Gunzip(data []byte) ([]byte, error) {
	if !IsGzipped(data) {
		return data, nil
	}
	r, err := gziplib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
