package common

import (
	"github.com/google/uuid"
)

// ID is a time-sortable 128-bit identifier (UUIDv7) in its canonical
// text form. Every entity uses it as primary key.
type ID string

// NewID returns a fresh identifier. IDs generated later sort after earlier
// ones within the same process.
func NewID() ID {
	return ID(uuid.Must(uuid.NewV7()).String())
}

// ParseID validates s and returns it in canonical form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", Validation("id", "malformed identifier")
	}
	return ID(u.String()), nil
}

// MustParseID is like ParseID but panics on malformed input.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }
