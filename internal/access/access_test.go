package access

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "patient read", role: RolePatient, action: ActionRead, allow: true},
		{name: "patient write", role: RolePatient, action: ActionWrite, allow: true},
		{name: "patient share", role: RolePatient, action: ActionShare, allow: true},
		{name: "patient complete", role: RolePatient, action: ActionCompleteExercises, allow: true},
		{name: "patient manage patients", role: RolePatient, action: ActionManagePatients, allow: false},
		{name: "patient author templates", role: RolePatient, action: ActionAuthorTemplates, allow: false},
		{name: "therapist read", role: RoleTherapist, action: ActionRead, allow: true},
		{name: "therapist write", role: RoleTherapist, action: ActionWrite, allow: false},
		{name: "therapist share", role: RoleTherapist, action: ActionShare, allow: false},
		{name: "therapist manage patients", role: RoleTherapist, action: ActionManagePatients, allow: true},
		{name: "therapist author templates", role: RoleTherapist, action: ActionAuthorTemplates, allow: true},
		{name: "unknown role", role: Role("admin"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("patient") != RolePatient {
		t.Fatalf("expected patient to normalize")
	}
	if Normalize("therapist") != RoleTherapist {
		t.Fatalf("expected therapist to normalize")
	}
	if Normalize("admin") != "" {
		t.Fatalf("expected unknown role to normalize to empty")
	}
	if Valid("") {
		t.Fatalf("expected empty role to be invalid")
	}
}
