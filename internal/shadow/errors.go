// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package shadow

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// ErrNotConfigured is matched by every ConfigurationError.
const ErrNotConfigured = errors.ConstError("shadow resource not configured")

// ConfigurationError is returned when cluster-test traffic reaches a
// business resource that has no shadow counterpart configured. It is not
// retried.
type ConfigurationError struct {
	Family   string
	Resource string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no shadow %s configured for business resource %q", e.Family, e.Resource)
}

// Unwrap returns ErrNotConfigured.
func (e *ConfigurationError) Unwrap() error {
	return ErrNotConfigured
}

// UnsupportedOperationError is returned when a routed call has no
// equivalent on the shadow resource. It matches errors.NotSupported.
type UnsupportedOperationError struct {
	Family   string
	Resource string
	Method   string
	ArgTypes []string
}

// Error implements error.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("shadow %s for %q does not support %s(%s)",
		e.Family, e.Resource, e.Method, strings.Join(e.ArgTypes, ", "))
}

// Unwrap returns errors.NotSupported.
func (e *UnsupportedOperationError) Unwrap() error {
	return errors.NotSupported
}

// IsConfigurationError reports whether err is, or wraps, a
// ConfigurationError.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
