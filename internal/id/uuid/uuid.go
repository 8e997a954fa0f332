// Package uuid generates run identifiers.
package uuid

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run IDs so ledger rows sort by start time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewRunID returns a fresh UUIDv7.
func (Generator) NewRunID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// Static returns the same ID on every call; used to replay a run under a known ID.
type Static uuid.UUID

// NewRunID implements crawler.IDGenerator.
func (s Static) NewRunID() (uuid.UUID, error) {
	if uuid.UUID(s) == uuid.Nil {
		return uuid.Nil, errors.New("static run id is nil")
	}
	return uuid.UUID(s), nil
}
