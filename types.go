package refsync

import "github.com/jward/refsync/internal/store"

// Public type aliases for internal store types used in the Engine and
// QueryBuilder APIs.

type Store = store.Store
type Library = store.Library
type GraphDeclaration = store.Declaration
type IdentifierReference = store.IdentifierReference
type Suppression = store.Suppression
type ModuleKey = store.ModuleKey
