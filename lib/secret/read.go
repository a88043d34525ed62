// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"io"
)

// initialReadSize is the first region allocated by NewFromReader. An
// OpenSSH ed25519 private key container is roughly 400 bytes, so most
// reads never grow.
const initialReadSize = 4096

// ErrTooLarge is returned by NewFromReader when the source produces
// more than the permitted number of bytes.
var ErrTooLarge = errors.New("secret: source exceeds size limit")

// NewFromReader reads all of source into protected memory. Data flows
// from the reader straight into mmap regions: when a region fills, a
// larger one is allocated, the contents are moved, and the old region
// is zeroed and released. No heap copy is made.
//
// Reading more than limit bytes fails with ErrTooLarge. An empty
// source is an error.
func NewFromReader(source io.Reader, limit int) (*Buffer, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("secret: read limit must be positive, got %d", limit)
	}

	size := min(initialReadSize, limit)
	region, err := allocate(size)
	if err != nil {
		return nil, err
	}

	length := 0
	for {
		if length == len(region) {
			if len(region) == limit {
				// Probe for one more byte to distinguish "exactly
				// limit" from "over limit".
				var probe [1]byte
				n, _ := io.ReadFull(source, probe[:])
				Zero(probe[:])
				if n > 0 {
					release(region)
					return nil, ErrTooLarge
				}
				break
			}

			grown, err := allocate(min(len(region)*2, limit))
			if err != nil {
				release(region)
				return nil, err
			}
			copy(grown, region[:length])
			release(region)
			region = grown
		}

		n, err := source.Read(region[length:])
		length += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			release(region)
			return nil, fmt.Errorf("secret: reading source: %w", err)
		}
	}

	if length == 0 {
		release(region)
		return nil, fmt.Errorf("secret: source is empty")
	}

	return &Buffer{region: region, length: length}, nil
}
