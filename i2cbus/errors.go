// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for nil or deleted handles and
	// arguments outside of their valid range.
	ErrInvalidArgument = errors.New("i2cbus: invalid argument")
	// ErrTimeout is returned when a port or device lock could not be
	// acquired within the handle's timeout.
	ErrTimeout = errors.New("i2cbus: timeout")
	// ErrFailure is returned when a transaction or a resource allocation
	// failed.
	ErrFailure = errors.New("i2cbus: failure")

	// ErrInvalidPort is returned for a port identifier outside of the
	// registry. It matches ErrInvalidArgument.
	ErrInvalidPort = fmt.Errorf("%w: invalid port", ErrInvalidArgument)
	// ErrNotInstalled is returned when a transaction targets a port that
	// has not been initialized. It matches ErrInvalidArgument.
	ErrNotInstalled = fmt.Errorf("%w: port not installed", ErrInvalidArgument)
)
