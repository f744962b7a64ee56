package resource

import "time"

// Entry is one normalized listing item (file or container). Drivers build
// entries from raw backend payloads; callers never see backend JSON.
type Entry struct {
	Name        string    `json:"name"`
	Location    string    `json:"location"` // "<provider_key>:<backend_id>"
	ID          string    `json:"id"`       // backend-native id, the part of Location after the key
	Size        int64     `json:"size"`     // 0 for containers unless the backend reports one
	Type        string    `json:"type"`     // MIME type, DefaultType when unknown
	IsContainer bool      `json:"container"`
	ModTime     time.Time `json:"mod_time,omitzero"` // zero when the backend does not report one
}

// NewEntry builds an Entry whose Location is derived from key and id.
// Containers always carry the directory MIME type and the size given.
func NewEntry(key, id, name string, size int64, isContainer bool) Entry {
	e := Entry{
		Name:        name,
		Location:    NewLocation(key, id).String(),
		ID:          id,
		Size:        size,
		IsContainer: isContainer,
	}

	if isContainer {
		e.Type = DirectoryType
	} else {
		e.Type = TypeForName(name)
	}

	return e
}

// ParsedLocation returns the entry's location as a Location value.
func (e *Entry) ParsedLocation() (Location, error) {
	return ParseLocation(e.Location)
}
