// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatch

import (
	"context"
	"net"

	"github.com/juju/errors"

	"github.com/juju/shadow/core/invocation"
)

// IsTimeout reports whether err means the call ran out of time rather than
// failed outright.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errors.Timeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// ResultCode maps the outcome of a call to an invocation result code.
func ResultCode(err error) string {
	switch {
	case err == nil:
		return invocation.ResultSuccess
	case IsTimeout(err):
		return invocation.ResultTimeout
	default:
		return invocation.ResultFailed
	}
}
