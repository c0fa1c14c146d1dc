package orgs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the organization tree and membership relation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SubtreeIDs returns the root organization id plus every transitive
// descendant, walking the parent→children relation.
func (r *Repository) SubtreeIDs(ctx context.Context, rootID int64) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("orgs: repository not initialised")
	}
	const query = `WITH RECURSIVE tree AS (
    SELECT id FROM organizations WHERE id = $1
    UNION ALL
    SELECT o.id FROM organizations o JOIN tree t ON o.parent_id = t.id
)
SELECT id FROM tree ORDER BY id`
	rows, err := r.pool.Query(ctx, query, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemberOrgIDs returns the organizations a principal is directly attached to.
func (r *Repository) MemberOrgIDs(ctx context.Context, principalID int64) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("orgs: repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT org_id FROM org_members WHERE user_id = $1 ORDER BY org_id`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
