package models

import (
	"encoding/json"
	"time"
)

// Document is a single record in a tenant's data collection.
// Data is opaque JSON which stores copy verbatim and never reinterpret.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
}
