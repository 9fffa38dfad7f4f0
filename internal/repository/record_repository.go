package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/verification-bot/internal/domain"
)

// RecordRepository persists finalized verification records in Postgres.
type RecordRepository interface {
	Exists(ctx context.Context, userID string) (bool, error)
	Append(ctx context.Context, record domain.VerificationRecord) error
}

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository constructs repository.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) Exists(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM verification_records WHERE user_id=$1)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, userID).Scan(&exists)
	return exists, err
}

func (r *recordRepository) Append(ctx context.Context, record domain.VerificationRecord) error {
	const query = `
        INSERT INTO verification_records (user_id, phone, handle, reference, review_status)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query,
		record.UserID,
		record.Phone,
		record.Handle,
		record.Reference,
		record.ReviewStatus,
	)
	return err
}
