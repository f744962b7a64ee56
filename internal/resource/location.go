// Package resource defines the normalized listing model shared by every
// provider driver and consumed by the retriever: Entry values and the
// composite Location identifier that addresses a resource across all
// configured providers.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package resource

import (
	"encoding"
	"errors"
	"fmt"
	"strings"
)

// locationSeparator splits the provider key from the backend-native id.
const locationSeparator = ":"

// ErrInvalidLocation is returned when a location string cannot be parsed.
var ErrInvalidLocation = errors.New("resource: invalid location")

// Location is a parsed "<provider_key>:<backend_id>" pair. An empty ID
// addresses the provider's root container.
type Location struct {
	Provider string
	ID       string
}

// NewLocation builds a Location for the given provider key and backend id.
func NewLocation(provider, id string) Location {
	return Location{Provider: provider, ID: id}
}

// ParseLocation splits s at the first separator. Backend ids may contain
// colons; provider keys may not. A bare key ("box") addresses the root.
func ParseLocation(s string) (Location, error) {
	if s == "" {
		return Location{}, fmt.Errorf("%w: empty string", ErrInvalidLocation)
	}

	key, id, _ := strings.Cut(s, locationSeparator)
	if key == "" {
		return Location{}, fmt.Errorf("%w: %q has no provider key", ErrInvalidLocation, s)
	}

	return Location{Provider: key, ID: id}, nil
}

// String renders the location as "<provider_key>:<backend_id>".
func (l Location) String() string {
	return l.Provider + locationSeparator + l.ID
}

// IsRoot reports whether the location addresses the provider's root container.
func (l Location) IsRoot() bool {
	return l.ID == ""
}

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Location) UnmarshalText(text []byte) error {
	parsed, err := ParseLocation(string(text))
	if err != nil {
		return err
	}

	*l = parsed

	return nil
}

var (
	_ encoding.TextMarshaler   = Location{}
	_ encoding.TextUnmarshaler = (*Location)(nil)
)
