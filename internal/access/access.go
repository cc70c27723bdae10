// Package access holds the role/action matrix. Relationship checks
// (ownership, therapist-patient edges, shared-data rows) live in app.
package access

type Role string
type Action string

const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
)

const (
	ActionRead              Action = "read"
	ActionWrite             Action = "write"
	ActionShare             Action = "share"
	ActionCompleteExercises Action = "complete-exercises"
	ActionManagePatients    Action = "manage-patients"
	ActionAuthorTemplates   Action = "author-templates"
)

func Can(role Role, action Action) bool {
	switch role {
	case RolePatient:
		return action == ActionRead || action == ActionWrite || action == ActionShare || action == ActionCompleteExercises
	case RoleTherapist:
		return action == ActionRead || action == ActionManagePatients || action == ActionAuthorTemplates
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RolePatient, RoleTherapist:
		return Role(role)
	default:
		return ""
	}
}

// Valid reports whether role is one of the two known roles. Roles are
// fixed at signup and never change afterwards.
func Valid(role string) bool {
	return Normalize(role) != ""
}
