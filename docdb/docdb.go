// Package docdb defines the document store the contract engine consumes.
// Tables hold JSON documents keyed by an auto-incremented _id and are named
// "<contract>_<table>". Implementations provide read-your-writes semantics;
// atomicity and durability belong to the block-level transaction that
// wraps the store.
package docdb

import (
	"errors"
	"regexp"

	"github.com/tos-network/ssc/core/types"
)

// IDField is the primary key every stored document carries.
const IDField = "_id"

var (
	ErrInvalidTableName = errors.New("docdb: invalid table name")
	ErrTableNotFound    = errors.New("docdb: table does not exist")
	ErrInvalidQuery     = errors.New("docdb: invalid query")
	ErrInvalidDocument  = errors.New("docdb: invalid document")
	ErrMissingID        = errors.New("docdb: document has no _id")
	ErrDuplicateKey     = errors.New("docdb: duplicate primary key")
	ErrContractExists   = errors.New("docdb: contract already exists")
	ErrContractNotFound = errors.New("docdb: contract does not exist")
)

var tableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidTableName reports whether name may be used as a full table name.
func ValidTableName(name string) bool {
	return tableName.MatchString(name)
}

// IsRequestError reports whether err was caused by the arguments of a call,
// as opposed to a failure of the store itself.
func IsRequestError(err error) bool {
	for _, target := range []error{
		ErrInvalidTableName, ErrTableNotFound, ErrInvalidQuery,
		ErrInvalidDocument, ErrMissingID, ErrDuplicateKey,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Document is a stored record.
type Document = map[string]interface{}

// Query is a filter document. See Match for the supported language.
type Query = map[string]interface{}

// SortField orders find results by one field.
type SortField struct {
	Index      string `json:"index"`
	Descending bool   `json:"descending"`
}

// FindOptions restricts and orders the result of Find.
type FindOptions struct {
	Limit   int         // zero selects the default limit
	Offset  int         // documents skipped after sorting
	Indexes []SortField // sort order, _id ascending if empty
}

// TableInfo is the store-side description of a table.
type TableInfo struct {
	Indexes    []string `json:"indexes"`
	PrimaryKey []string `json:"primaryKey,omitempty"`
	NextID     int64    `json:"nextId"`
}

// Database is the persistent store consumed by the engine. Table arguments
// are full table names.
type Database interface {
	// FindContract returns the contract record, or nil if it does not exist.
	FindContract(name string) (*types.Contract, error)
	AddContract(contract *types.Contract) error
	UpdateContract(contract *types.Contract) error

	// CreateTable creates a table and reports whether it did not exist.
	CreateTable(table string, indexes []string, primaryKey []string) (bool, error)
	// AddIndexes declares more indexes and returns how many were new.
	AddIndexes(table string, indexes []string) (int, error)
	TableExists(table string) (bool, error)
	Table(table string) (*TableInfo, error)

	Find(table string, query Query, opts FindOptions) ([]Document, error)
	// FindOne returns the first match in _id order, or nil.
	FindOne(table string, query Query) (Document, error)
	// Insert stores doc under a fresh _id and returns the stored copy.
	Insert(table string, doc Document) (Document, error)
	// Update merges doc into the stored document with the same _id and
	// deletes the fields named in unsets.
	Update(table string, doc Document, unsets Document) error
	Remove(table string, doc Document) error

	// GetBlockInfo returns the stored block with the given number, or nil.
	GetBlockInfo(number uint64) (Document, error)
}
