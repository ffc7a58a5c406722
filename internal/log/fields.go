// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldAttemptID = "attempt_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Session fields
	FieldPhase     = "phase"
	FieldOldPhase  = "old_phase"
	FieldAuthMode  = "auth_mode"
	FieldKey       = "key"
	FieldChallenge = "challenge"

	// Search fields
	FieldSource   = "source"
	FieldKeyword  = "keyword"
	FieldProvider = "provider"
	FieldOutcome  = "outcome"
	FieldFlavor   = "flavor"
	FieldResults  = "results"

	// Path / URL fields
	FieldPath = "path"
	FieldURL  = "url"
)
