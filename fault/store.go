package fault

import "errors"

var (
	ErrDomainNotFound     = errors.New("domain not found")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrObjectNotFound     = errors.New("object not found")
	ErrBucketCreateFailed = errors.New("bucket create failed")
	ErrDomainCreateFailed = errors.New("domain create failed")
	ErrUnmarshalFailed    = errors.New("unmarshal failed")
	ErrMarshalFailed      = errors.New("marshal failed")
	ErrInvalidFilter      = errors.New("invalid filter expression")
)
