package orgs

import "time"

// Organization is one node in the merchant/branch tree. MerchantID points at
// the root organization owning the subtree; the root references itself.
type Organization struct {
	ID         int64
	ParentID   *int64
	MerchantID int64
	Code       string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
