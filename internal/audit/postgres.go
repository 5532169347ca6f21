package audit

import (
	"context"
	"database/sql"
	"time"

	"portier.dev/internal/ids"
)

var _ Recorder = (*PGStore)(nil)

// PGStore appends audit entries to the tenant's log table and mirrors them as
// JSON events.
type PGStore struct {
	db     *sql.DB
	prefix string
}

// NewPGStore builds an audit store scoped by the tenant's table prefix.
// The prefix must come from the validated tenant registry; it is interpolated
// into identifiers, not passed as a parameter.
func NewPGStore(db *sql.DB, prefix string) *PGStore {
	return &PGStore{db: db, prefix: prefix}
}

func (s *PGStore) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into `+s.prefix+`log(id, occurred_at, principal_id, client_ip, action, target_type, target_id, status, message)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.Timestamp, entry.PrincipalID, entry.ClientIP, entry.Action,
		entry.TargetType, entry.TargetID, entry.Status, entry.Message,
	)
	if err != nil {
		return err
	}
	_ = LogRecorder{}.Record(ctx, entry)
	return nil
}
