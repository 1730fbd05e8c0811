package core

import "errors"

// Error kinds surfaced by the core services. Callers match with errors.Is;
// the web adapter maps each kind to an HTTP status and error code.
var (
	// ErrNotFound — requested entity absent (unit, version, row).
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput — malformed or out-of-range user-supplied value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPolicyViolation — user-selected discount over the active cap, down
	// payment below minimum, mortgage body over cap, or installment term past
	// the cadastre date.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrWhitelistReject — unit not in the calculator whitelist for the
	// requested variant.
	ErrWhitelistReject = errors.New("unit not whitelisted")

	// ErrMissingReference — no discount row for the (project, property type,
	// payment method) the computation needs, or no active version.
	ErrMissingReference = errors.New("missing reference")

	// ErrInvalidState — operation not permitted for the version's lifecycle
	// state (delete an activated version, edit an active one, clone with no
	// active version).
	ErrInvalidState = errors.New("invalid state")

	// ErrExternalFailure — central-bank oracle, SMTP, or messaging gateway
	// failure. Logged, not retried, surfaced as a soft failure.
	ErrExternalFailure = errors.New("external failure")
)
