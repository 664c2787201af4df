package access

// ScopeBranch resolves the branch filter for a request. Superadmins and users
// without a home branch may pick any branch (nil means all); everyone else is
// pinned to their own branch.
func (s *Subject) ScopeBranch(requested *int64) *int64 {
	if s == nil {
		return requested
	}
	if s.Role == RoleSuperAdmin || s.BranchID == nil {
		return requested
	}
	branch := *s.BranchID
	return &branch
}
