package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osmanmakhtoom/url-shortener/internal/database"
	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

type urlRecord struct {
	ID          int64        `db:"id"`
	UUID        uuid.UUID    `db:"uuid"`
	ShortCode   string       `db:"short_code"`
	OriginalURL string       `db:"original_url"`
	VisitCount  int64        `db:"visit_count"`
	IsActive    bool         `db:"is_active"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	DeletedAt   sql.NullTime `db:"deleted_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	url := &models.URL{
		ID:          r.ID,
		UUID:        r.UUID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		VisitCount:  r.VisitCount,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		url.DeletedAt = &t
	}

	return url
}

// URLRepository provides access to shortened URL rows. All lookups are
// filtered to non-deleted rows; rows are never deleted physically.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

func (r *URLRepository) Create(ctx context.Context, shortCode, originalURL string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to generate uuid: %w", op, err)
	}

	rec := new(urlRecord)
	query := `INSERT INTO urls(uuid, short_code, original_url)
		VALUES ($1, $2, $3)
		RETURNING *`

	err = r.db.GetContext(ctx, rec, query, id, shortCode, originalURL)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls
		WHERE short_code = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

func (r *URLRepository) GetByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByOriginalURL"

	rec := new(urlRecord)
	query := `SELECT * FROM urls
		WHERE original_url = $1 AND deleted_at IS NULL
		LIMIT 1`

	err := r.db.GetContext(ctx, rec, query, originalURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// AddVisitCount merges a drained counter delta into the persisted visit count.
func (r *URLRepository) AddVisitCount(ctx context.Context, id int64, delta int64) error {
	const op = "database.postgres.URLRepository.AddVisitCount"

	query := `UPDATE urls
		SET visit_count = visit_count + $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("%s: failed to update visit count: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

func (r *URLRepository) SoftDelete(ctx context.Context, shortCode string) error {
	const op = "database.postgres.URLRepository.SoftDelete"

	query := `UPDATE urls
		SET deleted_at = now(), updated_at = now()
		WHERE short_code = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to delete url record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

func (r *URLRepository) Restore(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Restore"

	rec := new(urlRecord)
	query := `UPDATE urls
		SET deleted_at = NULL, updated_at = now()
		WHERE short_code = $1 AND deleted_at IS NOT NULL
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to restore url record: %w", op, err)
	}

	return rec.ToURL(), nil
}
