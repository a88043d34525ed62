// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sshagent

import "time"

// Sign outcomes passed to Recorder.SignCompleted.
const (
	SignOK           = "ok"
	SignNotFound     = "not_found"
	SignDecryptError = "decrypt_error"
	SignError        = "sign_error"
)

// Recorder receives session and request events, typically to update
// metrics. Methods are called from session goroutines concurrently.
type Recorder interface {
	SessionOpened()
	SessionClosed()
	RequestReceived(kind string)
	SignCompleted(result string)
	DecryptCompleted(duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened()                 {}
func (nopRecorder) SessionClosed()                 {}
func (nopRecorder) RequestReceived(string)         {}
func (nopRecorder) SignCompleted(string)           {}
func (nopRecorder) DecryptCompleted(time.Duration) {}
