package fault

import "errors"

var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrKeyExists          = errors.New("key already exists")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrBucketCreateFailed = errors.New("bucket create failed")
	ErrUnmarshalFailed    = errors.New("unmarshal failed")
	ErrMarshalFailed      = errors.New("marshal failed")
	ErrPutFailed          = errors.New("put failed")
	ErrDeleteFailed       = errors.New("delete failed")
	ErrSequenceFailed     = errors.New("sequence allocation failed")
	ErrNilDB              = errors.New("nil bolt db")
	ErrClosed             = errors.New("store closed")
)
