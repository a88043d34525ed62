// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for decrypted private
// keys and passphrases.
//
// A [Buffer] lives in an anonymous mmap region that is pinned with
// mlock and marked MADV_DONTDUMP. Close zeroes and unmaps it. The
// region is outside the Go heap, so the garbage collector never moves
// or copies it.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [NewFromReader] -- streams from an io.Reader with a size limit,
//     never staging the data on the heap
//
// [Zero] overwrites a heap slice in place. It is the fallback for
// material that a library hands back on the heap (parsed key structs).
//
// Allocation fails with [ErrLocked] when the memlock limit is
// exhausted; the agent then refuses to decrypt rather than fall back
// to swappable memory.
package secret
