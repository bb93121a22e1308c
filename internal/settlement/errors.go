// Package settlement talks to the services that actually move money: the
// custody provider that signs for user wallets, the shielding service used
// for private transfers, the swap venue, and the Solana RPC.
package settlement

import "errors"

var (
	// ErrAmbiguousOutcome means the request may or may not have been executed.
	// Callers must poll by idempotency key before deciding anything.
	ErrAmbiguousOutcome = errors.New("settlement outcome unknown")
	// ErrRejected is a definitive refusal. Nothing was executed.
	ErrRejected = errors.New("settlement rejected")
	// ErrNotFound is returned by polls when the provider has no record of the key.
	ErrNotFound = errors.New("settlement not found")
)
