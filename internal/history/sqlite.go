package history

import (
	"context"
	"fmt"
	"time"

	"github.com/nubewired/scangate/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, e *Entry) error {
	query := `INSERT INTO scan_history (id, ts, contractor_name, company, email, result, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp.Unix(), e.ContractorName, e.Company, e.Email, e.Result, e.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	prune := `DELETE FROM scan_history WHERE id NOT IN
		(SELECT id FROM scan_history ORDER BY ts DESC, id DESC LIMIT ?)`
	if _, err := r.db.ExecContext(ctx, prune, maxEntries); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxEntries {
		limit = maxEntries
	}

	query := `SELECT id, ts, contractor_name, company, email, result, reason
		FROM scan_history ORDER BY ts DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var item Entry
		var ts int64
		if err := rows.Scan(&item.ID, &ts, &item.ContractorName, &item.Company, &item.Email, &item.Result, &item.Reason); err != nil {
			return nil, err
		}
		item.Timestamp = time.Unix(ts, 0)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scan_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
