// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package advice

// CutOffResult is the outcome of deciding whether a call is diverted to a
// shadow resource. The zero value is Passed.
type CutOffResult struct {
	cutoff bool
	value  any
}

// Passed lets the call proceed against its original target.
func Passed() CutOffResult {
	return CutOffResult{}
}

// Cutoff reports that the call was served elsewhere and yielded v.
func Cutoff(v any) CutOffResult {
	return CutOffResult{cutoff: true, value: v}
}

// IsCutoff reports whether the call was diverted.
func (r CutOffResult) IsCutoff() bool {
	return r.cutoff
}

// Value returns the result of the diverted call.
func (r CutOffResult) Value() any {
	return r.value
}

// Signal converts the result into the control signal that substitutes the
// diverted result for the original call.
func (r CutOffResult) Signal() ControlSignal {
	if !r.cutoff {
		return Continue()
	}
	return ReturnImmediately(r.value)
}
