// Copyright (c) 2020–2024 The cryolab developers. All rights reserved.
// Project site: https://github.com/gotmc/cryolab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cryolab

import "errors"

// Errors returned by the lab drivers. Callers test for them with errors.Is;
// drivers wrap them with the offending value.
var (
	ErrInvalidChannel        = errors.New("invalid switch channel")
	ErrInconsistentBiasState = errors.New("inconsistent HEMT bias state")
	ErrUserAbortedSafety     = errors.New("HEMTs did not power off as expected")
	ErrPowerOutOfRange       = errors.New("power out of range")
	ErrAttenuationOutOfRange = errors.New("attenuation must be between 0 and 30 dB")
	ErrAttenuationMismatch   = errors.New("dissimilar attenuation values")

	// ErrBiasAlreadyOff is only returned by ramps configured as strict; the
	// default ramp treats a ramp-down of unbiased HEMTs as a no-op.
	ErrBiasAlreadyOff = errors.New("HEMT bias already off")

	ErrInvalidStep    = errors.New("ramp step must be positive")
	ErrMalformedData  = errors.New("malformed instrument data")
	ErrInvalidAddress = errors.New("invalid instrument address")
)
