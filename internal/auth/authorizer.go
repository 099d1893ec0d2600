package auth

import "github.com/yourname/timetracker/internal"

// CapabilityManageAnyTimesheets lets a user read and mutate other users'
// timesheets and entries.
const CapabilityManageAnyTimesheets = "manage-any-timesheets"

// CapabilityAuthorizer answers authorization questions from the membership
// and capability lists carried on the user record (populated by whichever
// Provider resolved the token).
type CapabilityAuthorizer struct{}

func (CapabilityAuthorizer) CanAccessWorkspace(user *internal.User, workspaceID string) bool {
	return user.CanAccessWorkspace(workspaceID)
}

func (CapabilityAuthorizer) CanManageTimesheets(user *internal.User) bool {
	return user.HasCapability(CapabilityManageAnyTimesheets)
}
