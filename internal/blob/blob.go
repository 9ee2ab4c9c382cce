// Package blob persists media bytes and hands out durable public URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrTooLarge = errors.New("blob too large")

// Store abstracts object storage.
type Store interface {
	// Put writes the reader's bytes under key.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// PublicURL returns the durable reference for key.
	PublicURL(key string) string
}

// ReadAllWithLimit reads from r and rejects payloads larger than maxBytes.
func ReadAllWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	data, err := io.ReadAll(&io.LimitedReader{R: r, N: maxBytes + 1})
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
