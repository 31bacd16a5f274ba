package models

// ConflictFlag is an informational warning surfaced to operators when an
// address cross-references existing accounts or invite history. Flags never
// block an action.
type ConflictFlag string

const (
	// ConflictDeactivatedUser marks an existing account for this email that
	// is in a deactivated state.
	ConflictDeactivatedUser ConflictFlag = "DEACTIVATED_USER"

	// ConflictDuplicateEmail marks more than one historical invite row for
	// this email. Expected over time, since terminal rows are retained.
	ConflictDuplicateEmail ConflictFlag = "DUPLICATE_EMAIL"
)
