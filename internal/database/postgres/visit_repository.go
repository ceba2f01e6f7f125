package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

type visitRecord struct {
	UUID      uuid.UUID `db:"uuid"`
	URLID     int64     `db:"url_id"`
	IPAddress *string   `db:"ip_address"`
	VisitedAt time.Time `db:"visited_at"`
}

// VisitRepository persists visit detail records. Visits are written in bulk
// by the visit worker and are immutable thereafter.
type VisitRepository struct {
	db *sqlx.DB
}

func NewVisitRepository(db *sqlx.DB) *VisitRepository {
	return &VisitRepository{
		db: db,
	}
}

// CreateBatch inserts the given visits in a single transaction.
func (r *VisitRepository) CreateBatch(ctx context.Context, visits []models.Visit) error {
	const op = "database.postgres.VisitRepository.CreateBatch"

	if len(visits) == 0 {
		return nil
	}

	recs := make([]visitRecord, 0, len(visits))
	for _, v := range visits {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("%s: failed to generate uuid: %w", op, err)
		}

		recs = append(recs, visitRecord{
			UUID:      id,
			URLID:     v.URLID,
			IPAddress: v.IPAddress,
			VisitedAt: v.VisitedAt,
		})
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `INSERT INTO visits(uuid, url_id, ip_address, visited_at)
		VALUES (:uuid, :url_id, :ip_address, :visited_at)`

	if _, err := tx.NamedExecContext(ctx, query, recs); err != nil {
		return fmt.Errorf("%s: failed to insert visit records: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return nil
}

// CountByURL returns the number of non-deleted visit records for a URL.
func (r *VisitRepository) CountByURL(ctx context.Context, urlID int64) (int64, error) {
	const op = "database.postgres.VisitRepository.CountByURL"

	var count int64
	query := `SELECT count(*) FROM visits
		WHERE url_id = $1 AND deleted_at IS NULL`

	if err := r.db.GetContext(ctx, &count, query, urlID); err != nil {
		return 0, fmt.Errorf("%s: failed to count visit records: %w", op, err)
	}

	return count, nil
}
