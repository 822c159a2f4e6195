package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below wrap these so callers can match
// with errors.Is without caring about the details.
var (
	ErrDuplicateEntity = errors.New("duplicate entity")
	ErrUnknownSigner   = errors.New("unknown signer")
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrNotSignedBy     = errors.New("entity not signed by signer")
	ErrInvalid         = errors.New("invalid entity descriptor")
)

// DuplicateEntityError is returned by Store.Register when an entity with the
// same name is already registered.
type DuplicateEntityError struct {
	Name string
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("entity %q is already registered", e.Name)
}

func (e *DuplicateEntityError) Unwrap() error { return ErrDuplicateEntity }

// UnknownSignerError is returned when a signer name does not resolve to an
// entity that has completed issuance.
type UnknownSignerError struct {
	Signer string
	// Entity is the signee that referenced Signer, when known.
	Entity string
}

func (e *UnknownSignerError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("entity %q references unknown signer %q", e.Entity, e.Signer)
	}
	return fmt.Sprintf("unknown signer %q", e.Signer)
}

func (e *UnknownSignerError) Unwrap() error { return ErrUnknownSigner }

// UnknownEntityError is returned when a revocation target is not registered.
type UnknownEntityError struct {
	Name string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %q", e.Name)
}

func (e *UnknownEntityError) Unwrap() error { return ErrUnknownEntity }

// NotSignedByError is returned when a revocation names a target that the
// given signer did not issue.
type NotSignedByError struct {
	Entity string
	Signer string
	// ActualSigner is empty when Entity is itself a root.
	ActualSigner string
}

func (e *NotSignedByError) Error() string {
	if e.ActualSigner == "" {
		return fmt.Sprintf("entity %q is self-signed, not signed by %q", e.Entity, e.Signer)
	}
	return fmt.Sprintf("entity %q is signed by %q, not %q", e.Entity, e.ActualSigner, e.Signer)
}

func (e *NotSignedByError) Unwrap() error { return ErrNotSignedBy }
