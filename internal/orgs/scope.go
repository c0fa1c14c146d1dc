package orgs

import "sort"

// Scope bounds which organizations an export run may read records and
// subject configurations for. The zero value is an empty scope: every
// scoped query yields zero rows, which is the fail-closed state for a
// principal that resolves to no organization.
type Scope struct {
	unrestricted bool
	ids          []int64
}

// UnrestrictedScope covers every organization including the global bucket.
func UnrestrictedScope() Scope {
	return Scope{unrestricted: true}
}

// NewScope builds a scope over an explicit organization id set.
func NewScope(ids []int64) Scope {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return Scope{ids: out}
}

// Unrestricted reports whether the scope covers all organizations.
func (s Scope) Unrestricted() bool { return s.unrestricted }

// Empty reports whether the scope covers nothing at all.
func (s Scope) Empty() bool { return !s.unrestricted && len(s.ids) == 0 }

// IDs returns the bounded organization ids. Callers must check
// Unrestricted first; an unrestricted scope has no id list.
func (s Scope) IDs() []int64 {
	out := make([]int64, len(s.ids))
	copy(out, s.ids)
	return out
}

// Contains reports whether the organization is inside the scope.
func (s Scope) Contains(id int64) bool {
	if s.unrestricted {
		return true
	}
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Narrow intersects the scope with a single organization id.
func (s Scope) Narrow(id int64) Scope {
	if s.Contains(id) {
		return NewScope([]int64{id})
	}
	return Scope{}
}
