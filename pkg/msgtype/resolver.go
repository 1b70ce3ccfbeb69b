package msgtype

import (
	"sort"
)

// ResolveCompatible finds the registered message type a request can be served by when there is
// no exact match. Candidates must share the protocol, message name and major version; minor
// versions are treated as compatible and the highest registered minor wins. Returns nil if
// nothing matches.
func ResolveCompatible(requested *MessageType, candidates []*MessageType) *MessageType {
	if requested == nil {
		return nil
	}

	var matching []*MessageType
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if c.Name != requested.Name || !SameProtocol(c, requested) {
			continue
		}
		matching = append(matching, c)
	}
	if len(matching) == 0 {
		return nil
	}

	sortDesc(matching)

	// Same prefix family first, so legacy senders get legacy replies.
	for _, m := range matching {
		if m.Prefix == requested.Prefix {
			return m
		}
	}
	return matching[0]
}

// SameProtocol reports whether two message types belong to the same protocol major version.
func SameProtocol(a, b *MessageType) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Protocol == b.Protocol && a.Version.Major() == b.Version.Major()
}

func sortDesc(types []*MessageType) {
	sort.SliceStable(types, func(i, j int) bool {
		return types[i].Version.GreaterThan(types[j].Version)
	})
}
