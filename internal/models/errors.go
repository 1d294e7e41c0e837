package models

import "errors"

// Error taxonomy for the session lifecycle. Validation and fetch failures are
// handled locally by the registry and worker - they drive status transitions
// and never surface to API callers as hard errors. Store failures do surface.
var (
	// ErrNotFound indicates a credential record is absent from the store.
	ErrNotFound = errors.New("credential not found")

	// ErrCredentialInvalid indicates the platform rejected the session.
	ErrCredentialInvalid = errors.New("session rejected by platform")

	// ErrLoginTimeout indicates the interactive login did not complete
	// within the polling window.
	ErrLoginTimeout = errors.New("interactive login timed out")

	// ErrLoginCancelled indicates the operator cancelled an in-flight
	// interactive login. Distinct from timeout: queued accounts keep their
	// status so the operator can retry.
	ErrLoginCancelled = errors.New("interactive login cancelled")

	// ErrImpersonationNotFound indicates the target account was absent
	// from the console's account list.
	ErrImpersonationNotFound = errors.New("account not found in console")

	// ErrImpersonationTimeout indicates the impersonation action did not
	// yield a new session within its bound.
	ErrImpersonationTimeout = errors.New("impersonation did not produce a session")

	// ErrMetricsFetch indicates a transient metrics failure. Cookies stay
	// valid; the account shows stale data until the next sweep.
	ErrMetricsFetch = errors.New("metrics fetch failed")

	// ErrStoreUnavailable indicates durable persistence failed. Fatal for
	// the current operation, surfaced to the caller.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
