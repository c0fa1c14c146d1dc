package shared

import "context"

// Role enumerates the principal roles the export pipeline distinguishes.
type Role string

const (
	RoleGlobalAdmin   Role = "GLOBAL_ADMIN"
	RoleMerchantAdmin Role = "MERCHANT_ADMIN"
	RoleOrdinary      Role = "ORDINARY"
)

// Principal is the authenticated caller handed over by the auth gateway.
// Authentication itself happens upstream; we only consume the resolved identity.
type Principal struct {
	ID         int64
	Role       Role
	MerchantID int64
}

// NormaliseRole maps unknown role strings to the least privileged role.
func NormaliseRole(v string) Role {
	switch Role(v) {
	case RoleGlobalAdmin, RoleMerchantAdmin, RoleOrdinary:
		return Role(v)
	default:
		return RoleOrdinary
	}
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
