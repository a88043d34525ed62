// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"sync"
)

// Buffer is a region of pinned, non-dumpable memory outside the Go
// heap. The agent holds every decrypted key and passphrase in one, and
// closes it as soon as the signature is made.
//
// Do not copy a Buffer. Bytes panics after Close.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	length int
	closed bool
}

// New returns a zero-filled Buffer of size bytes. The caller must
// Close it.
func New(size int) (*Buffer, error) {
	region, err := allocate(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{region: region, length: size}, nil
}

// NewFromBytes moves source into a new Buffer: source is copied, then
// zeroed in place.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, errors.New("secret: cannot create buffer from empty source")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	Zero(source)
	return buffer, nil
}

// Bytes returns the contents. The slice aliases protected memory and
// must not be retained past Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.region[:b.length]
}

// Len returns the content length, or 0 after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	return b.length
}

// Close zeroes and unmaps the memory. It is idempotent and accepts a
// nil Buffer, so callers can defer it before checking an error.
func (b *Buffer) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	region := b.region
	b.region = nil
	return release(region)
}

// Zero overwrites data with zeros. Use it on heap copies that a
// library hands back and that cannot live in a Buffer.
func Zero(data []byte) {
	clear(data)
}
