package fault

import "errors"

var (
	ErrDatabaseNotOpen     = errors.New("database not open")
	ErrInvalidDatabaseName = errors.New("invalid database name")
	ErrReservedName        = errors.New("reserved document name")
	ErrRootMissing         = errors.New("root document missing")
	ErrRootMismatch        = errors.New("root document does not match database")
	ErrPropagationTimeout  = errors.New("timed out waiting for store propagation")
)
