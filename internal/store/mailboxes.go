package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaycrm/mailroom/internal/model"
)

const mailboxColumns = `id, email, name, imap_host, imap_port, imap_username,
	is_active, last_synced_at, last_synced_uid, sync_status, created_at, updated_at`

// GetActiveMailboxes returns every mailbox flagged for synchronization.
func (s *SQLiteStore) GetActiveMailboxes(ctx context.Context) ([]model.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+mailboxColumns+" FROM mailboxes WHERE is_active = 1 ORDER BY email",
	)
	if err != nil {
		return nil, fmt.Errorf("querying active mailboxes: %w", err)
	}
	defer rows.Close()

	var out []model.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetMailbox fetches one mailbox by id. Returns ErrNotFound when absent.
func (s *SQLiteStore) GetMailbox(ctx context.Context, id string) (*model.Mailbox, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+mailboxColumns+" FROM mailboxes WHERE id = ?", id,
	)
	m, err := scanMailbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// UpsertMailbox inserts a mailbox or updates its connection settings in
// place, keyed by id. A missing id is generated. Sync state columns are
// only written on insert; the dedicated setters own them afterwards.
func (s *SQLiteStore) UpsertMailbox(ctx context.Context, m *model.Mailbox) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.LastSyncedUID == nil {
		m.LastSyncedUID = map[string]uint32{}
	}

	uidJSON, err := json.Marshal(m.LastSyncedUID)
	if err != nil {
		return fmt.Errorf("encoding watermarks: %w", err)
	}
	statusJSON, err := json.Marshal(m.SyncStatus)
	if err != nil {
		return fmt.Errorf("encoding sync status: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mailboxes (
			id, email, name, imap_host, imap_port, imap_username,
			is_active, last_synced_uid, sync_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			imap_host = excluded.imap_host,
			imap_port = excluded.imap_port,
			imap_username = excluded.imap_username,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		m.ID, m.Email, m.Name, m.IMAPHost, m.IMAPPort, m.IMAPUsername,
		boolToInt(m.IsActive), string(uidJSON), string(statusJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting mailbox %s: %w", m.Email, err)
	}
	return nil
}

// GetLastSyncedUID returns the watermark for one mailbox/folder pair.
// A folder never synced before reports zero.
func (s *SQLiteStore) GetLastSyncedUID(ctx context.Context, mailboxID, folder string) (uint32, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		"SELECT last_synced_uid FROM mailboxes WHERE id = ?", mailboxID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermarks for mailbox %s: %w", mailboxID, err)
	}

	watermarks := map[string]uint32{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &watermarks); err != nil {
			return 0, fmt.Errorf("decoding watermarks for mailbox %s: %w", mailboxID, err)
		}
	}
	return watermarks[folder], nil
}

// SetLastSyncedUID advances one folder's watermark and records the sync
// outcome on the mailbox row.
func (s *SQLiteStore) SetLastSyncedUID(
	ctx context.Context,
	mailboxID, folder string,
	uid uint32,
	success bool,
	syncErr string,
) error {
	m, err := s.GetMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}

	if m.LastSyncedUID == nil {
		m.LastSyncedUID = map[string]uint32{}
	}
	m.LastSyncedUID[folder] = uid

	now := time.Now().UTC()
	m.SyncStatus.LastSyncSuccess = success
	m.SyncStatus.LastSyncAt = &now
	m.SyncStatus.LastSyncError = syncErr

	uidJSON, err := json.Marshal(m.LastSyncedUID)
	if err != nil {
		return fmt.Errorf("encoding watermarks: %w", err)
	}
	statusJSON, err := json.Marshal(m.SyncStatus)
	if err != nil {
		return fmt.Errorf("encoding sync status: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE mailboxes
		SET last_synced_uid = ?, sync_status = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		string(uidJSON), string(statusJSON), now, now, mailboxID,
	)
	if err != nil {
		return fmt.Errorf("updating watermark for mailbox %s: %w", mailboxID, err)
	}
	return nil
}

// SetLegacyImportStatus records resumable bulk-import progress on the
// mailbox's sync-status blob. A nil status clears it.
func (s *SQLiteStore) SetLegacyImportStatus(
	ctx context.Context,
	mailboxID string,
	st *model.LegacyImportStatus,
) error {
	m, err := s.GetMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}

	m.SyncStatus.LegacyImport = st
	statusJSON, err := json.Marshal(m.SyncStatus)
	if err != nil {
		return fmt.Errorf("encoding sync status: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE mailboxes SET sync_status = ?, updated_at = ? WHERE id = ?",
		string(statusJSON), time.Now().UTC(), mailboxID,
	)
	if err != nil {
		return fmt.Errorf("updating import status for mailbox %s: %w", mailboxID, err)
	}
	return nil
}

// SetSyncOutcome records the result of a sync attempt on the mailbox row
// without touching any folder watermark.
func (s *SQLiteStore) SetSyncOutcome(ctx context.Context, mailboxID string, success bool, syncErr string) error {
	m, err := s.GetMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	m.SyncStatus.LastSyncSuccess = success
	m.SyncStatus.LastSyncAt = &now
	m.SyncStatus.LastSyncError = syncErr

	statusJSON, err := json.Marshal(m.SyncStatus)
	if err != nil {
		return fmt.Errorf("encoding sync status: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE mailboxes
		SET sync_status = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		string(statusJSON), now, now, mailboxID,
	)
	if err != nil {
		return fmt.Errorf("updating sync outcome for mailbox %s: %w", mailboxID, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMailbox(r rowScanner) (*model.Mailbox, error) {
	var (
		m          model.Mailbox
		isActive   int
		lastSynced sql.NullTime
		uidJSON    string
		statusJSON string
	)

	err := r.Scan(
		&m.ID, &m.Email, &m.Name, &m.IMAPHost, &m.IMAPPort, &m.IMAPUsername,
		&isActive, &lastSynced, &uidJSON, &statusJSON, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.IsActive = isActive != 0
	m.LastSyncedAt = timePtr(lastSynced.Time, lastSynced.Valid)

	m.LastSyncedUID = map[string]uint32{}
	if uidJSON != "" {
		if err := json.Unmarshal([]byte(uidJSON), &m.LastSyncedUID); err != nil {
			return nil, fmt.Errorf("decoding watermarks for mailbox %s: %w", m.ID, err)
		}
	}
	if statusJSON != "" {
		if err := json.Unmarshal([]byte(statusJSON), &m.SyncStatus); err != nil {
			return nil, fmt.Errorf("decoding sync status for mailbox %s: %w", m.ID, err)
		}
	}
	return &m, nil
}
