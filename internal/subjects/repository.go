package subjects

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads subject configuration rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForOrg returns the live configuration rows for one organization.
// Passing 0 selects the global bucket (NULL org_id rows).
func (r *Repository) ListForOrg(ctx context.Context, orgID int64) ([]SubjectConfig, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("subjects: repository not initialised")
	}
	const query = `SELECT id, code, org_id, account_no, COALESCE(category,''), COALESCE(preparer,''), COALESCE(voucher_group,''), deleted, created_at, updated_at
FROM subject_configs
WHERE NOT deleted
  AND (($1 = 0 AND org_id IS NULL) OR org_id = $1)
ORDER BY code`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var configs []SubjectConfig
	for rows.Next() {
		var cfg SubjectConfig
		var org sql.NullInt64
		if err := rows.Scan(&cfg.ID, &cfg.Code, &org, &cfg.AccountNo, &cfg.Category, &cfg.Preparer, &cfg.VoucherGroup, &cfg.Deleted, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		if org.Valid {
			v := org.Int64
			cfg.OrgID = &v
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}
