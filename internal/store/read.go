package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trappiz/tesla-order-status/internal/diff"
	"github.com/trappiz/tesla-order-status/internal/tree"
)

// LoadSnapshot returns the current snapshot for a reference.
// Returns ErrNoSnapshot when the reference has never been persisted.
func (s *Store) LoadSnapshot(ctx context.Context, reference string) (Snapshot, error) {
	var (
		body      string
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT body, fetched_at FROM snapshots WHERE reference = ?
	`, reference).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("reference %q: %w", reference, ErrNoSnapshot)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot %q: %w", reference, err)
	}

	node, err := tree.Decode([]byte(body))
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %q: %w", reference, err)
	}
	ts, err := parseTime(fetchedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %q fetched_at: %w", reference, err)
	}

	return Snapshot{Reference: reference, Body: node, FetchedAt: ts}, nil
}

// References returns every reference with a stored snapshot, sorted.
func (s *Store) References(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reference FROM snapshots ORDER BY reference ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	refs := []string{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, nil
}

// History returns all change batches for a reference in append order.
// Returns an empty slice (not nil) when no history exists.
func (s *Store) History(ctx context.Context, reference string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference, seq, detected_at, changes
		FROM history
		WHERE reference = ?
		ORDER BY seq ASC
	`, reference)
	if err != nil {
		return nil, fmt.Errorf("query history %q: %w", reference, err)
	}
	defer rows.Close()

	batches := []Batch{}
	for rows.Next() {
		var (
			b          Batch
			detectedAt string
			changes    string
		)
		if err := rows.Scan(&b.ID, &b.Reference, &b.Seq, &detectedAt, &changes); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if b.DetectedAt, err = parseTime(detectedAt); err != nil {
			return nil, fmt.Errorf("history %q detected_at: %w", reference, err)
		}
		if err := json.Unmarshal([]byte(changes), &b.Changes); err != nil {
			return nil, fmt.Errorf("decode history batch %q: %w", b.ID, err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history %q: %w", reference, err)
	}
	return batches, nil
}

// LastChanges returns the change records of the most recent batch for a
// reference, or nil when the reference has no history.
func (s *Store) LastChanges(ctx context.Context, reference string) ([]diff.Record, error) {
	var changes string
	err := s.db.QueryRowContext(ctx, `
		SELECT changes FROM history
		WHERE reference = ?
		ORDER BY seq DESC LIMIT 1
	`, reference).Scan(&changes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last changes %q: %w", reference, err)
	}

	var records []diff.Record
	if err := json.Unmarshal([]byte(changes), &records); err != nil {
		return nil, fmt.Errorf("decode last changes %q: %w", reference, err)
	}
	return records, nil
}

// LoadToken returns the installation's token record.
// Returns ErrNoToken when no token has been stored.
func (s *Store) LoadToken(ctx context.Context) (TokenRecord, error) {
	var (
		rec       TokenRecord
		expiresAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expires_at FROM token WHERE id = 1
	`).Scan(&rec.AccessToken, &rec.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenRecord{}, ErrNoToken
	}
	if err != nil {
		return TokenRecord{}, fmt.Errorf("load token: %w", err)
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return TokenRecord{}, fmt.Errorf("token expires_at: %w", err)
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
