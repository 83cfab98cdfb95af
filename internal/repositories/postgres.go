package repositories

import (
	"context"
	"time"

	"github.com/kestrelsec/authguard/internal/database"
	"github.com/kestrelsec/authguard/internal/models"
)

// PostgresSessionRepository persists sessions for multi-instance
// deployments where a shared relational store is preferred over Redis.
type PostgresSessionRepository struct {
	db *database.DB
}

// NewPostgresSessionRepository creates a session store on the given pool.
func NewPostgresSessionRepository(db *database.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Save(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, principal_id, origin_ip, created_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		session.ID,
		session.PrincipalID,
		session.OriginIP,
		session.CreatedAt,
		session.LastActivityAt,
		session.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

func (r *PostgresSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, principal_id, origin_ip, created_at, last_activity_at, expires_at
		FROM sessions
		WHERE id = $1
	`

	var session models.Session
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.PrincipalID,
		&session.OriginIP,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &session, nil
}

func (r *PostgresSessionRepository) Update(ctx context.Context, session *models.Session) error {
	query := `
		UPDATE sessions
		SET last_activity_at = $2, expires_at = $3
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, session.ID, session.LastActivityAt, session.ExpiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresSessionRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, database.MapPostgresError(err)
}

// PostgresAttemptRepository persists login-attempt records and IP blocks.
type PostgresAttemptRepository struct {
	db *database.DB
}

// NewPostgresAttemptRepository creates an attempt store on the given pool.
func NewPostgresAttemptRepository(db *database.DB) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{db: db}
}

func (r *PostgresAttemptRepository) Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error) {
	query := `
		SELECT identifier, failure_count, last_attempt_at, locked_until
		FROM login_attempts
		WHERE identifier = $1
	`

	var record models.LoginAttemptRecord
	err := r.db.Pool.QueryRow(ctx, query, identifier).Scan(
		&record.Identifier,
		&record.FailureCount,
		&record.LastAttemptAt,
		&record.LockedUntil,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &record, nil
}

func (r *PostgresAttemptRepository) Save(ctx context.Context, record *models.LoginAttemptRecord) error {
	query := `
		INSERT INTO login_attempts (identifier, failure_count, last_attempt_at, locked_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier)
		DO UPDATE SET failure_count = $2, last_attempt_at = $3, locked_until = $4
	`

	_, err := r.db.Pool.Exec(ctx, query,
		record.Identifier,
		record.FailureCount,
		record.LastAttemptAt,
		record.LockedUntil,
	)

	return database.MapPostgresError(err)
}

func (r *PostgresAttemptRepository) Delete(ctx context.Context, identifier string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE identifier = $1`, identifier)
	return database.MapPostgresError(err)
}

func (r *PostgresAttemptRepository) CountLocked(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE locked_until IS NOT NULL AND locked_until > $1`,
		now,
	).Scan(&count)
	return count, database.MapPostgresError(err)
}

func (r *PostgresAttemptRepository) SaveBlock(ctx context.Context, entry *models.IPBlockEntry) error {
	query := `
		INSERT INTO ip_blocks (ip, reason, blocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (ip) DO UPDATE SET reason = $2, blocked_at = $3
	`

	_, err := r.db.Pool.Exec(ctx, query, entry.IP, entry.Reason, entry.BlockedAt)
	return database.MapPostgresError(err)
}

func (r *PostgresAttemptRepository) GetBlock(ctx context.Context, ip string) (*models.IPBlockEntry, error) {
	var entry models.IPBlockEntry
	err := r.db.Pool.QueryRow(ctx,
		`SELECT ip, reason, blocked_at FROM ip_blocks WHERE ip = $1`, ip,
	).Scan(&entry.IP, &entry.Reason, &entry.BlockedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &entry, nil
}

func (r *PostgresAttemptRepository) DeleteBlock(ctx context.Context, ip string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM ip_blocks WHERE ip = $1`, ip)
	return database.MapPostgresError(err)
}

func (r *PostgresAttemptRepository) CountBlocks(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM ip_blocks`).Scan(&count)
	return count, database.MapPostgresError(err)
}

// PostgresChallengeRepository persists pending OTP challenges.
type PostgresChallengeRepository struct {
	db *database.DB
}

// NewPostgresChallengeRepository creates a challenge store on the given pool.
func NewPostgresChallengeRepository(db *database.DB) *PostgresChallengeRepository {
	return &PostgresChallengeRepository{db: db}
}

func (r *PostgresChallengeRepository) Save(ctx context.Context, challenge *models.OTPChallenge) error {
	query := `
		INSERT INTO otp_challenges (id, principal_id, channel, destination, code, created_at, expires_at, verified, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		challenge.ID,
		challenge.PrincipalID,
		string(challenge.Channel),
		challenge.Destination,
		challenge.Code,
		challenge.CreatedAt,
		challenge.ExpiresAt,
		challenge.Verified,
		challenge.Attempts,
	)

	return database.MapPostgresError(err)
}

func (r *PostgresChallengeRepository) Get(ctx context.Context, id string) (*models.OTPChallenge, error) {
	query := `
		SELECT id, principal_id, channel, destination, code, created_at, expires_at, verified, attempts
		FROM otp_challenges
		WHERE id = $1
	`

	var challenge models.OTPChallenge
	var channel string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&challenge.ID,
		&challenge.PrincipalID,
		&channel,
		&challenge.Destination,
		&challenge.Code,
		&challenge.CreatedAt,
		&challenge.ExpiresAt,
		&challenge.Verified,
		&challenge.Attempts,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	challenge.Channel = models.Channel(channel)

	return &challenge, nil
}

func (r *PostgresChallengeRepository) Update(ctx context.Context, challenge *models.OTPChallenge) error {
	query := `
		UPDATE otp_challenges
		SET verified = $2, attempts = $3
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, challenge.ID, challenge.Verified, challenge.Attempts)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PostgresChallengeRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

func (r *PostgresChallengeRepository) CountByPrincipalChannel(ctx context.Context, principalID string, channel models.Channel) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM otp_challenges WHERE principal_id = $1 AND channel = $2`,
		principalID, string(channel),
	).Scan(&count)
	return count, database.MapPostgresError(err)
}

func (r *PostgresChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return int(tag.RowsAffected()), nil
}
