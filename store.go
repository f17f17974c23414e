package hcf

import (
	"context"
	"io"
)

// Frontier identifies the project-scoped frontier that all slots, batches
// and state entries belong to.
type Frontier struct {
	Project string `json:"project"`
	Name    string `json:"name"`
}

// Validate returns an error if the frontier identity is incomplete.
func (f Frontier) Validate() error {
	if f.Project == "" {
		return Errorf(ECONFIG, "frontier project required")
	}
	if f.Name == "" {
		return Errorf(ECONFIG, "frontier name required")
	}
	return nil
}

// StatesCollection returns the name of the collection holding the
// frontier's state entries.
func (f Frontier) StatesCollection() string {
	return f.Name + "_states"
}

// String returns "project/name".
func (f Frontier) String() string {
	return f.Project + "/" + f.Name
}

// QueueStore is the remote batch store backing the shared work queue.
type QueueStore interface {
	// WriteBatch appends one batch to the slot and returns its identifier.
	// Stores that do not assign identifiers on write return "".
	WriteBatch(ctx context.Context, frontier Frontier, slot string, requests []Request) (string, error)

	// ReadBatches returns up to max undeleted batches of the slot in write
	// order without removing them. A max of zero or less reads all batches.
	ReadBatches(ctx context.Context, frontier Frontier, slot string, max int) ([]*Batch, error)

	// DeleteBatches removes the given batches from the slot.
	// Unknown identifiers are ignored.
	DeleteBatches(ctx context.Context, frontier Frontier, slot string, ids []string) error

	// DeleteSlot removes every batch of the slot.
	DeleteSlot(ctx context.Context, frontier Frontier, slot string) error
}

// StateStore is the remote store backing the shared state cache.
// State values are opaque encoded blobs.
type StateStore interface {
	// GetStates returns the stored values for the given keys.
	// Keys without a stored value are absent from the result.
	GetStates(ctx context.Context, frontier Frontier, keys []Fingerprint) (map[Fingerprint][]byte, error)

	// SetStates writes the given entries, overwriting existing values.
	SetStates(ctx context.Context, frontier Frontier, states map[Fingerprint][]byte) error

	// DeleteStates removes every state entry of the frontier.
	DeleteStates(ctx context.Context, frontier Frontier) error
}

// Store combines the queue and state stores of one backend.
type Store interface {
	QueueStore
	StateStore
	io.Closer
}
