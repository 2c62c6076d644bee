// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import "errors"

var (
	// ErrRegistryCollision is returned when a direct construction attempts to
	// register an instrument identity (kind, name) that already exists.
	ErrRegistryCollision = errors.New("meter: instrument already registered")

	// ErrInvalidTagValue is returned when a tag key is empty or a tag value
	// has no text rendering.
	ErrInvalidTagValue = errors.New("meter: invalid tag")

	// ErrMeasurementShape is returned when a measurement result cannot be
	// used by the instrument's aggregation (for example a wrapped callable
	// returning a value that cannot be coerced to a number).
	ErrMeasurementShape = errors.New("meter: unusable measurement value")
)
