// Package store owns the on-disk session layout: PRD hashing, session
// directory creation and discovery, atomic registry writes, and the
// append-only execution journal. A plan directory holds one session
// directory per PRD revision, named <seq>_<hash>.
package store

import "errors"

// Sentinel errors for the failure taxonomy. Callers match with errors.Is;
// every returned error wraps one of these where the taxonomy applies.
var (
	// ErrPRDNotFound marks a PRD path that does not exist or cannot be read.
	ErrPRDNotFound = errors.New("prd not found")

	// ErrPRDInvalid marks a PRD that exists but is empty or below the
	// minimum size.
	ErrPRDInvalid = errors.New("prd invalid")

	// ErrSessionFile marks a session directory whose contents are missing,
	// unparseable, or failing schema validation.
	ErrSessionFile = errors.New("session file error")

	// ErrNotFound marks a session lookup with no matching directory.
	ErrNotFound = errors.New("session not found")
)
