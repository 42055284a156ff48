package models

// ID is an opaque record identifier. Store backends map it to their native key
// type (UUIDv7 for memory and postgres, ObjectID hex for MongoDB); nothing outside
// a backend should interpret its contents.
type ID string

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return id == ""
}

func (id ID) String() string {
	return string(id)
}
