/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package lockfile guards against two agent instances sharing one
// working directory. Two agents polling the same bot would fight over
// playback state, so serve refuses to start while the lock is held.
package lockfile

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrHeld means another agent instance owns the lock.
var ErrHeld = errors.New("lock already held")

// Lock is an advisory file lock around the agent lifetime.
type Lock struct {
	path string
	fl   *flock.Flock
}

// New prepares a lock at path without acquiring it.
func New(path string) *Lock {
	return &Lock{path: path, fl: flock.New(path)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking.
func (l *Lock) Acquire() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrHeld, l.path)
	}
	return nil
}

// Release drops the lock. Safe to call when never acquired.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
