// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Mutex is a lock whose acquisition is bounded by a timeout.
type Mutex interface {
	// Lock acquires the lock, waiting at most timeout. It returns
	// ErrTimeout if the lock is still held by someone else after that.
	Lock(timeout time.Duration) error
	Unlock()
}

// MutexFactory allocates a Mutex for a port or a device handle. Returning an
// error means the lock could not be allocated.
type MutexFactory func() (Mutex, error)

// NewMutex is the default MutexFactory.
func NewMutex() (Mutex, error) {
	return &semMutex{sem: semaphore.NewWeighted(1)}, nil
}

type semMutex struct {
	sem *semaphore.Weighted
}

func (m *semMutex) Lock(timeout time.Duration) error {
	if timeout <= 0 {
		if m.sem.TryAcquire(1) {
			return nil
		}
		return ErrTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return ErrTimeout
	}
	return nil
}

func (m *semMutex) Unlock() {
	m.sem.Release(1)
}
