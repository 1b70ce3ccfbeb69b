package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectAgentInbound      = "agent.inbound"
	SubjectAgentOutbound     = "agent.outbound"
	SubjectConnectionRemoved = "agent.connection.removed"
	SubjectRoutesChanged     = "agent.routes.changed"
)

// BuildRoutesChangedSubject builds the per-connection route change subject.
func BuildRoutesChangedSubject(base, connectionID string) string {
	if base == "" {
		base = SubjectRoutesChanged
	}
	return fmt.Sprintf("%s.%s", base, SubjectToken(connectionID))
}

// SubjectToken makes s safe to use as a single subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
