// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when protected memory cannot be pinned in RAM.
// The usual cause is a low RLIMIT_MEMLOCK (ulimit -l) for the user
// running the agent.
var ErrLocked = errors.New("secret: cannot lock memory (check ulimit -l)")

// allocate maps size bytes of anonymous memory, pins it, and excludes
// it from core dumps. The region starts zero-filled.
func allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}

	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return region, nil
}

// release zeroes region and returns it to the kernel. The region is
// unusable afterwards even if an error is returned.
func release(region []byte) error {
	Zero(region)
	return errors.Join(
		wrapErrno("munlock", unix.Munlock(region)),
		wrapErrno("munmap", unix.Munmap(region)),
	)
}

func wrapErrno(call string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("secret: %s: %w", call, err)
}
