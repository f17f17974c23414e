package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fwojciec/hcf"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ hcf.Store = (*Store)(nil)

// Store implements hcf.Store using SQLite.
type Store struct {
	db *DB
}

// NewStore creates a new Store. Closing the Store closes db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// WriteBatch appends a batch to the slot.
func (s *Store) WriteBatch(ctx context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (string, error) {
	if err := validate(frontier); err != nil {
		return "", err
	}
	if len(requests) == 0 {
		return "", hcf.Errorf(hcf.EINVALID, "empty batch")
	}
	data, err := json.Marshal(requests)
	if err != nil {
		return "", hcf.Errorf(hcf.EINVALID, "encode batch: %v", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (id, project, frontier, slot, requests, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, frontier.Project, frontier.Name, slot, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", dbError(err)
	}
	return id, nil
}

// ReadBatches returns up to max batches of the slot in write order.
func (s *Store) ReadBatches(ctx context.Context, frontier hcf.Frontier, slot string, max int) ([]*hcf.Batch, error) {
	if err := validate(frontier); err != nil {
		return nil, err
	}

	var query strings.Builder
	args := []any{frontier.Project, frontier.Name, slot}
	query.WriteString(`
		SELECT id, requests
		FROM batches
		WHERE project = ? AND frontier = ? AND slot = ?
		ORDER BY seq`)
	appendLimit(&query, &args, max)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var batches []*hcf.Batch
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, dbError(err)
		}
		b := &hcf.Batch{ID: id, Slot: slot}
		if err := json.Unmarshal([]byte(data), &b.Requests); err != nil {
			return nil, hcf.Errorf(hcf.EINVALID, "failed to decode batch %s: %v", id, err)
		}
		batches = append(batches, b)
	}
	return batches, dbError(rows.Err())
}

// DeleteBatches removes the given batches from the slot.
func (s *Store) DeleteBatches(ctx context.Context, frontier hcf.Frontier, slot string, ids []string) error {
	if err := validate(frontier); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	args := []any{frontier.Project, frontier.Name, slot}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM batches
		WHERE project = ? AND frontier = ? AND slot = ? AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	return dbError(err)
}

// DeleteSlot removes every batch of the slot.
func (s *Store) DeleteSlot(ctx context.Context, frontier hcf.Frontier, slot string) error {
	if err := validate(frontier); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM batches WHERE project = ? AND frontier = ? AND slot = ?
	`, frontier.Project, frontier.Name, slot)
	return dbError(err)
}

// GetStates returns the stored values for keys.
func (s *Store) GetStates(ctx context.Context, frontier hcf.Frontier, keys []hcf.Fingerprint) (map[hcf.Fingerprint][]byte, error) {
	if err := validate(frontier); err != nil {
		return nil, err
	}
	out := make(map[hcf.Fingerprint][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := []any{frontier.Project, frontier.Name}
	for _, k := range keys {
		args = append(args, string(k))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, value
		FROM states
		WHERE project = ? AND frontier = ? AND fingerprint IN (`+placeholders(len(keys))+`)
	`, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fp    string
			value []byte
		)
		if err := rows.Scan(&fp, &value); err != nil {
			return nil, dbError(err)
		}
		out[hcf.Fingerprint(fp)] = value
	}
	return out, dbError(rows.Err())
}

// SetStates writes the given entries in one transaction.
func (s *Store) SetStates(ctx context.Context, frontier hcf.Frontier, states map[hcf.Fingerprint][]byte) error {
	if err := validate(frontier); err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return dbError(err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO states (project, frontier, fingerprint, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project, frontier, fingerprint)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return dbError(err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for fp, value := range states {
		if _, err := stmt.ExecContext(ctx, frontier.Project, frontier.Name, string(fp), value, now); err != nil {
			return dbError(err)
		}
	}
	return dbError(tx.Commit())
}

// DeleteStates removes every state entry of the frontier.
func (s *Store) DeleteStates(ctx context.Context, frontier hcf.Frontier) error {
	if err := validate(frontier); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM states WHERE project = ? AND frontier = ?
	`, frontier.Project, frontier.Name)
	return dbError(err)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validate(frontier hcf.Frontier) error {
	if err := frontier.Validate(); err != nil {
		return hcf.Errorf(hcf.EINVALID, "%s", hcf.ErrorMessage(err))
	}
	return nil
}
