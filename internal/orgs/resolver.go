package orgs

import (
	"context"
	"fmt"

	"github.com/seaway-erp/seaway-erp/internal/shared"
)

// TreeReader is the slice of the repository the resolver needs.
type TreeReader interface {
	SubtreeIDs(ctx context.Context, rootID int64) ([]int64, error)
	MemberOrgIDs(ctx context.Context, principalID int64) ([]int64, error)
}

// Resolver computes the organization scope an export run may touch.
//
// The rules are deliberately different from record-level CRUD scoping used
// elsewhere: an ordinary principal exports only for organizations it is
// directly attached to, without descending into sub-organizations.
type Resolver struct {
	repo TreeReader
}

// NewResolver constructs a Resolver.
func NewResolver(repo TreeReader) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the scope for the principal, optionally narrowed to a
// single requested organization. An empty result is a valid fail-closed
// state, not an error.
func (r *Resolver) Resolve(ctx context.Context, p *shared.Principal, filterOrgID int64) (Scope, error) {
	if p == nil {
		return Scope{}, shared.ErrUnauthenticated
	}
	switch p.Role {
	case shared.RoleGlobalAdmin:
		if filterOrgID > 0 {
			ids, err := r.repo.SubtreeIDs(ctx, filterOrgID)
			if err != nil {
				return Scope{}, fmt.Errorf("orgs: resolve filter subtree: %w", err)
			}
			return NewScope(ids), nil
		}
		return UnrestrictedScope(), nil
	case shared.RoleMerchantAdmin:
		if p.MerchantID <= 0 {
			return Scope{}, nil
		}
		ids, err := r.repo.SubtreeIDs(ctx, p.MerchantID)
		if err != nil {
			return Scope{}, fmt.Errorf("orgs: resolve merchant subtree: %w", err)
		}
		scope := NewScope(ids)
		if filterOrgID > 0 {
			return scope.Narrow(filterOrgID), nil
		}
		return scope, nil
	default:
		ids, err := r.repo.MemberOrgIDs(ctx, p.ID)
		if err != nil {
			return Scope{}, fmt.Errorf("orgs: resolve memberships: %w", err)
		}
		scope := NewScope(ids)
		if filterOrgID > 0 {
			return scope.Narrow(filterOrgID), nil
		}
		return scope, nil
	}
}
