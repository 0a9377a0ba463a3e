package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trappiz/tesla-order-status/internal/diff"
)

// ReplaceSnapshot persists a snapshot, atomically overwriting only that
// reference's row. Other references are untouched even if this call fails.
func (s *Store) ReplaceSnapshot(ctx context.Context, snap Snapshot) error {
	body, err := encodeBody(snap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (reference, body, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET
			body = excluded.body,
			fetched_at = excluded.fetched_at
	`, snap.Reference, body, formatTime(snap.FetchedAt))
	if err != nil {
		return fmt.Errorf("replace snapshot %q: %w", snap.Reference, err)
	}
	return nil
}

// TouchSnapshot updates only the fetch timestamp of a reference's snapshot.
// Used when a fetch succeeded but produced no changes, so the TTL window
// restarts without rewriting the body.
func (s *Store) TouchSnapshot(ctx context.Context, reference string, fetchedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET fetched_at = ? WHERE reference = ?
	`, formatTime(fetchedAt), reference)
	if err != nil {
		return fmt.Errorf("touch snapshot %q: %w", reference, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("touch snapshot %q: %w", reference, ErrNoSnapshot)
	}
	return nil
}

// AppendChanges appends one dated batch of change records to a reference's
// history. Appending an empty batch is a no-op. Batches are never reordered
// or edited after append; seq is assigned as the next value for the
// reference inside the same transaction.
func (s *Store) AppendChanges(ctx context.Context, reference string, records []diff.Record, detectedAt time.Time) error {
	if len(records) == 0 {
		return nil
	}

	changes, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal changes %q: %w", reference, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append changes %q: begin tx: %w", reference, err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM history WHERE reference = ?
	`, reference).Scan(&seq)
	if err != nil {
		return fmt.Errorf("append changes %q: next seq: %w", reference, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (id, reference, seq, detected_at, changes)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), reference, seq, formatTime(detectedAt), string(changes))
	if err != nil {
		return fmt.Errorf("append changes %q: insert: %w", reference, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append changes %q: commit: %w", reference, err)
	}
	return nil
}

// SaveToken upserts the installation's single token row.
func (s *Store) SaveToken(ctx context.Context, rec TokenRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token (id, access_token, refresh_token, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at
	`, rec.AccessToken, rec.RefreshToken, formatTime(rec.ExpiresAt))
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func encodeBody(snap Snapshot) (string, error) {
	if snap.Reference == "" {
		return "", fmt.Errorf("snapshot has empty reference")
	}
	if snap.Body == nil {
		return "", fmt.Errorf("snapshot %q has nil body", snap.Reference)
	}
	body, err := treeEncode(snap.Body)
	if err != nil {
		return "", fmt.Errorf("encode snapshot %q: %w", snap.Reference, err)
	}
	return body, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
