package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/notesapp/internal/model"
)

// PostgresOTPRepo はPostgreSQLを使用したワンタイムコードリポジトリ。
type PostgresOTPRepo struct {
	db *sql.DB
}

// NewPostgresOTPRepo はPostgresOTPRepoを生成する。
func NewPostgresOTPRepo(db *sql.DB) *PostgresOTPRepo {
	return &PostgresOTPRepo{db: db}
}

// Create はワンタイムコードを保存する。
func (r *PostgresOTPRepo) Create(ctx context.Context, code *model.OneTimeCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO one_time_codes (id, email, code, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		code.ID, code.Email, code.Code, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create one-time code: %w", err)
	}
	return nil
}

// FindValid はemailとcodeが完全一致し、nowより後に期限が来るコードを1件取得する。
// TTLスイープ前の期限切れコードもここで除外される。
func (r *PostgresOTPRepo) FindValid(ctx context.Context, email, code string, now time.Time) (*model.OneTimeCode, error) {
	otp := &model.OneTimeCode{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, code, expires_at, created_at
		 FROM one_time_codes
		 WHERE email = $1 AND code = $2 AND expires_at > $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		email, code, now,
	).Scan(&otp.ID, &otp.Email, &otp.Code, &otp.ExpiresAt, &otp.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find one-time code: %w", err)
	}

	return otp, nil
}

// DeleteByEmail は指定メールアドレスの全コードを削除する。
func (r *PostgresOTPRepo) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM one_time_codes WHERE email = $1`,
		email,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete one-time codes: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ OTPRepository = (*PostgresOTPRepo)(nil)
