// Package msgtype parses protocol message type URIs and resolves version aliases.
package msgtype

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "msgtype:parser"

// Message type URI prefixes. Both families carry identical protocols.
const (
	LegacyPrefix  = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/"
	CurrentPrefix = "https://didcomm.org/"
)

var (
	protocolNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	messageNameRegex  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	versionRegex      = regexp.MustCompile(`^\d+\.\d+$`)
)

// MessageType holds the parsed components of a message type URI.
//
// Supported formats:
//   - did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/routing/1.0/route-update-request
//   - https://didcomm.org/routing/1.0/route-update-request
//   - <any doc uri ending in '/' or ';spec/'><protocol>/<major.minor>/<name>
type MessageType struct {
	// Raw input URI
	URI string
	// Document URI prefix including the trailing separator
	Prefix string
	// Protocol family name (e.g., "routing")
	Protocol string
	// Protocol version (major.minor)
	Version *masterminds.Version
	// Message name within the protocol (e.g., "route-update-request")
	Name string
}

// Parse parses a message type URI.
func Parse(uri string) (*MessageType, error) {
	raw := strings.TrimSpace(uri)
	parts := strings.Split(raw, "/")
	if len(parts) < 4 {
		return nil, fmt.Errorf("%s - invalid message type, expected <prefix><protocol>/<version>/<name>: %q", logPrefix, raw)
	}

	name := parts[len(parts)-1]
	versionStr := parts[len(parts)-2]
	protocol := parts[len(parts)-3]
	prefix := strings.Join(parts[:len(parts)-3], "/") + "/"

	if !protocolNameRegex.MatchString(protocol) {
		return nil, fmt.Errorf("%s - invalid protocol name %q in %q", logPrefix, protocol, raw)
	}
	if !messageNameRegex.MatchString(name) {
		return nil, fmt.Errorf("%s - invalid message name %q in %q", logPrefix, name, raw)
	}
	if !versionRegex.MatchString(versionStr) {
		return nil, fmt.Errorf("%s - invalid protocol version %q in %q", logPrefix, versionStr, raw)
	}
	version, err := masterminds.NewVersion(versionStr)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid protocol version %q: %w", logPrefix, versionStr, err)
	}

	return &MessageType{
		URI:      raw,
		Prefix:   prefix,
		Protocol: protocol,
		Version:  version,
		Name:     name,
	}, nil
}

// VersionString returns the protocol version as "major.minor".
func (m *MessageType) VersionString() string {
	return fmt.Sprintf("%d.%d", m.Version.Major(), m.Version.Minor())
}

// Key returns the prefix-independent identity of the message type, e.g. "routing/1.0/route-update-request".
func (m *MessageType) Key() string {
	return m.Protocol + "/" + m.VersionString() + "/" + m.Name
}

// IsLegacy reports whether the URI uses the legacy did:sov document prefix.
func (m *MessageType) IsLegacy() bool {
	return m.Prefix == LegacyPrefix
}

// Build builds a message type URI from parts.
func Build(prefix, protocol, version, name string) string {
	return prefix + protocol + "/" + version + "/" + name
}

// Aliases returns the legacy and current URIs for a protocol message, in that order.
func Aliases(protocol, version, name string) []string {
	return []string{
		Build(LegacyPrefix, protocol, version, name),
		Build(CurrentPrefix, protocol, version, name),
	}
}
