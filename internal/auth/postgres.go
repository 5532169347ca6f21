package auth

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. The table prefix comes from the
// validated tenant registry and is interpolated into identifiers; all values
// travel as query parameters.
type PGStore struct {
	db     *sql.DB
	prefix string
}

func NewPGStore(db *sql.DB, prefix string) *PGStore {
	return &PGStore{db: db, prefix: prefix}
}

func (s *PGStore) Principals() PrincipalStore {
	return &principalStore{db: s.db, prefix: s.prefix}
}

func (s *PGStore) RefreshTokens() RefreshTokenStore {
	return &refreshTokenStore{db: s.db, prefix: s.prefix}
}

// Principal store -----------------------------------------------------------

type principalStore struct {
	db     *sql.DB
	prefix string
}

const principalColumns = `id, identifier, name, rights, status, type, last_seen, created_at`

func (s *principalStore) table() string { return s.prefix + "client" }

func (s *principalStore) Create(ctx context.Context, p *Principal, rawSecret string) error {
	hash, err := HashSecret(rawSecret)
	if err != nil {
		return ErrInvalidInput
	}
	now := time.Now().UTC()
	p.LastSeen = now
	p.CreatedAt = now
	row := s.db.QueryRowContext(ctx,
		`insert into `+s.table()+`(identifier, secret_hash, name, rights, status, type, last_seen, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8) returning id`,
		p.Identifier, hash, p.Name, p.Rights, int(p.Status), int(p.Type), p.LastSeen, p.CreatedAt,
	)
	return row.Scan(&p.ID)
}

func (s *principalStore) Find(ctx context.Context, id int64) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from `+s.table()+` where id=$1`, id)
	return scanPrincipal(row)
}

func (s *principalStore) FindByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from `+s.table()+` where lower(identifier)=lower($1)`, identifier)
	return scanPrincipal(row)
}

func (s *principalStore) List(ctx context.Context) ([]*Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+principalColumns+` from `+s.table()+` order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var principals []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

func (s *principalStore) Update(ctx context.Context, p *Principal, newRawSecret string) error {
	// The stored hash is rewritten only when a new raw secret was supplied.
	if newRawSecret != "" {
		hash, err := HashSecret(newRawSecret)
		if err != nil {
			return ErrInvalidInput
		}
		_, err = s.db.ExecContext(ctx,
			`update `+s.table()+` set identifier=$1, secret_hash=$2, name=$3, rights=$4, status=$5, type=$6 where id=$7`,
			p.Identifier, hash, p.Name, p.Rights, int(p.Status), int(p.Type), p.ID,
		)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`update `+s.table()+` set identifier=$1, name=$2, rights=$3, status=$4, type=$5 where id=$6`,
		p.Identifier, p.Name, p.Rights, int(p.Status), int(p.Type), p.ID,
	)
	return err
}

func (s *principalStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from `+s.table()+` where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *principalStore) VerifyCredentials(ctx context.Context, identifier, secret string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+`, secret_hash from `+s.table()+` where lower(identifier)=lower($1)`,
		identifier)

	var (
		p      Principal
		status int
		typ    int
		hash   string
	)
	err := row.Scan(&p.ID, &p.Identifier, &p.Name, &p.Rights, &status, &typ, &p.LastSeen, &p.CreatedAt, &hash)
	if err == sql.ErrNoRows {
		burnVerification(secret)
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if VerifySecret(hash, secret) != nil {
		return nil, ErrUnauthorized
	}
	p.Status = Status(status)
	p.Type = Type(typ)
	p.verified = true
	return &p, nil
}

func (s *principalStore) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update `+s.table()+` set last_seen=$1 where id=$2`, at, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var (
		p      Principal
		status int
		typ    int
	)
	err := row.Scan(&p.ID, &p.Identifier, &p.Name, &p.Rights, &status, &typ, &p.LastSeen, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	p.Type = Type(typ)
	return &p, nil
}

// Refresh token store -------------------------------------------------------

type refreshTokenStore struct {
	db     *sql.DB
	prefix string
}

func (s *refreshTokenStore) table() string { return s.prefix + "token" }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into `+s.table()+`(id, principal_id, token, issued_at, expires_at, revoked)
		 values($1,$2,$3,$4,$5,$6)`,
		tok.ID, tok.PrincipalID, tok.Value, tok.IssuedAt, tok.ExpiresAt, tok.Revoked,
	)
	return err
}

func (s *refreshTokenStore) Find(ctx context.Context, value string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, principal_id, token, issued_at, expires_at, revoked from `+s.table()+` where token=$1`,
		value)
	var tok RefreshToken
	err := row.Scan(&tok.ID, &tok.PrincipalID, &tok.Value, &tok.IssuedAt, &tok.ExpiresAt, &tok.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Consume is the rotation primitive: a single conditional update, so two
// concurrent rotations of the same value cannot both succeed.
func (s *refreshTokenStore) Consume(ctx context.Context, value string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update `+s.table()+` set revoked=true where token=$1 and revoked=false and expires_at > $2`,
		value, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, value string, principalID int64) (bool, error) {
	query := `update ` + s.table() + ` set revoked=true where token=$1 and revoked=false`
	args := []any{value}
	if principalID > 0 {
		query += ` and principal_id=$2`
		args = append(args, principalID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
