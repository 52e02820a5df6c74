package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired indicates a request arrived without tenant context.
	ErrTenantRequired = errors.New("tenant id required")
	// ErrLockNotObtained indicates another writer holds the key.
	ErrLockNotObtained = errors.New("lock not obtained")
)
