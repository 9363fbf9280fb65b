package importer

import (
	"errors"
	"fmt"
)

// ErrImportInProgress is returned when an import is requested while another
// one still holds the store.
var ErrImportInProgress = errors.New("import already in progress")

// MalformedInputError means the export could not be read as well-formed XML.
// Nothing from the failed import is committed.
type MalformedInputError struct {
	Offset int64
	Err    error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed export at byte %d: %v", e.Offset, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// StorageError wraps a failed table create, insert, index build or commit.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
