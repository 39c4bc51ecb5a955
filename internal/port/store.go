package port

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collection names used by the dashboard.
const (
	CollectionRepositories = "repositories"
	CollectionJobs         = "jobs"
	CollectionJobResults   = "jobResults"
	CollectionUsers        = "users"
)

// Filter is an equality constraint on a document field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Document is a raw record from the store. Data carries the document body;
// CreatedAt and UpdatedAt are server-assigned.
type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChangeEvent signals that a document in a collection was written.
type ChangeEvent struct {
	Collection string `json:"collection"`
	DocID      string `json:"doc_id"`
	Op         string `json:"op"` // create, update
}

// Change operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
)

// UnsubscribeFunc tears down a subscription. It is idempotent and no
// callback fires after the first call returns.
type UnsubscribeFunc func()

// DocumentStore abstracts the remote document database: typed point
// reads/writes, filtered queries and push change notifications, each scoped
// to a collection.
type DocumentStore interface {
	// Query returns documents matching every filter, newest first by the
	// orderBy field. A limit of 0 means no limit.
	Query(ctx context.Context, collection string, filters []Filter, orderBy string, limit int) ([]Document, error)

	// Get returns a document by id. Absence is a coded not-found error.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Create inserts a document with a store-assigned id and server
	// timestamps, returning the new id.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)

	// Put writes the document under the given id, replacing any existing
	// body. Used for documents keyed by an external identity (profiles).
	Put(ctx context.Context, collection, id string, fields map[string]any) error

	// Update merges the partial fields into an existing document and
	// refreshes its server-assigned updatedAt.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Subscribe registers fn for change events on a collection. Delivery
	// order follows emission order; fn must not block.
	Subscribe(collection string, fn func(ChangeEvent)) (UnsubscribeFunc, error)
}

// Store error codes, mirroring the remote database's error surface.
const (
	StoreCodeNotFound         = "not-found"
	StoreCodeUnavailable      = "unavailable"
	StoreCodePermissionDenied = "permission-denied"
	StoreCodeMalformed        = "malformed" // document failed schema decoding
)

// StoreError is a coded error from the document store boundary.
type StoreError struct {
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err with a store error code.
func NewStoreError(code string, err error) *StoreError {
	return &StoreError{Code: code, Err: err}
}

func storeCode(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsNotFound reports whether err is a coded not-found store error.
func IsNotFound(err error) bool { return storeCode(err) == StoreCodeNotFound }

// IsUnavailable reports whether err is a transient connectivity error.
func IsUnavailable(err error) bool { return storeCode(err) == StoreCodeUnavailable }

// IsPermissionDenied reports whether err is a permission error.
func IsPermissionDenied(err error) bool { return storeCode(err) == StoreCodePermissionDenied }

// IsMalformed reports whether err is a schema decode failure.
func IsMalformed(err error) bool { return storeCode(err) == StoreCodeMalformed }
