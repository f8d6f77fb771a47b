// Package domain holds typed identifiers shared across the matching core.
//
// Typed IDs keep a DonorID from being passed where a RequestID is expected.
// Construct them with the Parse functions at trust boundaries (ingest
// decoders, store scans); direct conversion from uuid.UUID bypasses the
// nil check.
package domain

import (
	"bytes"
	"strings"

	"github.com/google/uuid"

	dErrors "hemolink/pkg/domain-errors"
)

// maxIDLength rejects oversized input before handing it to uuid.Parse.
const maxIDLength = 64

type (
	// DonorID identifies a registered donor.
	DonorID uuid.UUID
	// RequestID identifies a blood request.
	RequestID uuid.UUID
	// RequesterID identifies the hospital or person that raised a request.
	RequesterID uuid.UUID
	// AttemptID identifies one dispatch-and-await cycle.
	AttemptID uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseDonorID(s string) (DonorID, error) {
	u, err := parseUUID("donor id", s)
	return DonorID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID("request id", s)
	return RequestID(u), err
}

func ParseRequesterID(s string) (RequesterID, error) {
	u, err := parseUUID("requester id", s)
	return RequesterID(u), err
}

func ParseAttemptID(s string) (AttemptID, error) {
	u, err := parseUUID("attempt id", s)
	return AttemptID(u), err
}

func NewDonorID() DonorID         { return DonorID(uuid.New()) }
func NewRequestID() RequestID     { return RequestID(uuid.New()) }
func NewRequesterID() RequesterID { return RequesterID(uuid.New()) }
func NewAttemptID() AttemptID     { return AttemptID(uuid.New()) }

func (id DonorID) String() string     { return uuid.UUID(id).String() }
func (id RequestID) String() string   { return uuid.UUID(id).String() }
func (id RequesterID) String() string { return uuid.UUID(id).String() }
func (id AttemptID) String() string   { return uuid.UUID(id).String() }

func (id DonorID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RequesterID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AttemptID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// Less orders donor IDs by their byte representation, which matches the
// ordering of their canonical string form. Used for deterministic tie-breaks.
func (id DonorID) Less(other DonorID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id DonorID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id RequestID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id RequesterID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AttemptID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *DonorID) UnmarshalText(b []byte) error {
	parsed, err := ParseDonorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequesterID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequesterID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AttemptID) UnmarshalText(b []byte) error {
	parsed, err := ParseAttemptID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
