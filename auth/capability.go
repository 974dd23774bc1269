package auth

import "twok/models"

// IsAdmin reports whether role carries moderator powers.
func IsAdmin(role string) bool { return role == models.RoleAdmin }

// CanViewProfile decides whether an actor may read the private data of the
// user identified by targetID. Admins may read anyone's; everyone else only
// their own.
func CanViewProfile(actorRole string, actorID, targetID int64) bool {
	return IsAdmin(actorRole) || actorID == targetID
}
