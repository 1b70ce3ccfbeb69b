package commsutil

import "testing"

func TestBuildRoutesChangedSubject(t *testing.T) {
	tests := []struct {
		name         string
		base         string
		connectionID string
		want         string
	}{
		{"default base", "", "3fa85f64-5717-4562-b3fc-2c963f66afa6", "agent.routes.changed.3fa85f64-5717-4562-b3fc-2c963f66afa6"},
		{"custom base", "mediator.routes", "conn-1", "mediator.routes.conn-1"},
		{"dotted id", "", "a.b", "agent.routes.changed.a_b"},
		{"wildcards", "", "*>", "agent.routes.changed.__"},
		{"empty id", "", "", "agent.routes.changed._"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildRoutesChangedSubject(tt.base, tt.connectionID)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildRoutesChangedSubject(%q, %q) = %q, want %q", tt.base, tt.connectionID, got, tt.want)
			}
		})
	}
}

func TestSubjectToken(t *testing.T) {
	if got := SubjectToken("did:key:z6Mk ok"); got != "did:key:z6Mk_ok" {
		t.Errorf("commsutil:subjects_test - SubjectToken = %q", got)
	}
}
