package fault

import "errors"

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrItemLoadFailed   = errors.New("item load failed")
	ErrSaveFailed       = errors.New("document save failed")
	ErrRemoveFailed     = errors.New("document remove failed")
)
