// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package configerr holds the error returned by layer and model constructors when their
// configuration is invalid.
//
// Constructors validate their whole configuration before creating any variable, so a
// returned configuration error never leaves partially created variables in the context.
//
// Use errors.Is(err, configerr.ErrConfiguration) to check for it.
package configerr

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrConfiguration is the sentinel wrapped by all configuration errors.
var ErrConfiguration = errors.New("invalid configuration")

// Errorf returns ErrConfiguration wrapped with the formatted message.
func Errorf(format string, args ...any) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// Is reports whether err is (or wraps) a configuration error.
func Is(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// Catch runs fn and converts a panic raised by it into an error.
// Configuration errors panicked by fn are returned as is, other exceptions are wrapped.
func Catch(fn func()) error {
	exception := exceptions.Try(fn)
	if exception == nil {
		return nil
	}
	if err, ok := exception.(error); ok {
		if Is(err) {
			return err
		}
		return errors.WithMessage(err, "failed to build layer")
	}
	return errors.Errorf("failed to build layer: %v", exception)
}
