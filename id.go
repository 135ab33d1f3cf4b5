package starpay

import "github.com/xraph/starpay/id"

// ID is the identifier type for entities starpay mints.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
