package durable

import "github.com/craftedsys/durable/id"

// ID is the primary identifier type for all durable entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
