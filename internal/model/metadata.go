package model

import (
	"time"
)

// MetadataBucket is the key/value bucket holding process-wide facts.
const MetadataBucket = "metadata"

// Well-known metadata keys.
const (
	SchemaVersionKey = "schema_version"
	LastSyncAtKey    = "last_sync_at"
)

// SchemaVersion is the on-disk layout version written at database init so
// future upgrades can migrate in place.
const SchemaVersion = 1

// A Metadata is a keyed singleton record. It is overwritten in place and
// never expires.
type Metadata struct {
	Key       string    `json:"key"        msgpack:"key"`
	Value     string    `json:"value"      msgpack:"value"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}
