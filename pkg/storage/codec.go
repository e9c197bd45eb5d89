package storage

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the streaming codec data files pass through.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionLZ4
)

// writeJSONFile streams v as JSON to path through the active codec. The
// payload lands in a sibling .tmp file first and is renamed over the target,
// so readers never observe a partial write.
func (e *Engine) writeJSONFile(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := e.encodeTo(file, v); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

func (e *Engine) encodeTo(w io.Writer, v interface{}) error {
	switch e.compression {
	case CompressionGzip:
		zw := gzip.NewWriter(w)
		if err := json.NewEncoder(zw).Encode(v); err != nil {
			zw.Close()
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to flush gzip stream: %w", err)
		}
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if err := json.NewEncoder(zw).Encode(v); err != nil {
			zw.Close()
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to flush lz4 stream: %w", err)
		}
	default:
		if err := json.NewEncoder(w).Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	}
	return nil
}

// readJSONFile streams path through the active codec into v.
func (e *Engine) readJSONFile(path string, v interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	switch e.compression {
	case CompressionGzip:
		zr, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionLZ4:
		r = lz4.NewReader(file)
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", path, err)
	}
	return nil
}
