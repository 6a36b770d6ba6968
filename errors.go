package bucketstore

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error classes, one per stable error kind named in the operation
// taxonomy. Handlers return errors wrapped by the class matching the
// condition they detected; callers test the kind with errors.As against
// *StoreError or with the class's Has method.
var (
	ErrBucketNotFound      = errs.Class("bucket not found")
	ErrBucketVersion       = errs.Class("bucket version")
	ErrInvalidBucketName   = errs.Class("invalid bucket name")
	ErrInvalidBucketConfig = errs.Class("invalid bucket config")
	ErrNotFunction         = errs.Class("not a registered trigger")
	ErrInvalidIndexType    = errs.Class("invalid index type")
	ErrInvalidQuery        = errs.Class("invalid query")
	ErrNotIndexed          = errs.Class("not indexed")
	ErrEtagConflict        = errs.Class("etag conflict")
	ErrObjectNotFound      = errs.Class("object not found")
	ErrUniqueAttribute     = errs.Class("unique attribute violation")
	ErrTransient           = errs.Class("transient")
	ErrInternal            = errs.Class("internal")
)

// Kind identifies which of the taxonomy's stable error kinds a StoreError
// carries, independent of the human-readable message.
type Kind int

const (
	KindInternal Kind = iota
	KindBucketNotFound
	KindBucketVersion
	KindInvalidBucketName
	KindInvalidBucketConfig
	KindNotFunction
	KindInvalidIndexType
	KindInvalidQuery
	KindNotIndexed
	KindEtagConflict
	KindObjectNotFound
	KindUniqueAttribute
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindBucketNotFound:
		return "BucketNotFound"
	case KindBucketVersion:
		return "BucketVersion"
	case KindInvalidBucketName:
		return "InvalidBucketName"
	case KindInvalidBucketConfig:
		return "InvalidBucketConfig"
	case KindNotFunction:
		return "NotFunction"
	case KindInvalidIndexType:
		return "InvalidIndexType"
	case KindInvalidQuery:
		return "InvalidQuery"
	case KindNotIndexed:
		return "NotIndexed"
	case KindEtagConflict:
		return "EtagConflict"
	case KindObjectNotFound:
		return "ObjectNotFound"
	case KindUniqueAttribute:
		return "UniqueAttributeError"
	case KindTransient:
		return "Transient"
	default:
		return "Internal"
	}
}

// StoreError carries enough context to log and to classify programmatically:
// the operation kind, the bucket/key it concerns (when known), and the
// wrapped cause.
type StoreError struct {
	Kind   Kind
	Bucket string
	Key    string
	Msg    string
	Err    error
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Error() string {
	loc := e.Bucket
	if e.Key != "" {
		loc += "/" + e.Key
	}
	if loc != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Kind, loc, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Kind, loc, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newStoreErr(kind Kind, class *errs.Class, bucket, key string, err error, format string, args ...any) error {
	se := &StoreError{Kind: kind, Bucket: bucket, Key: key, Msg: fmt.Sprintf(format, args...), Err: err}
	return class.Wrap(se)
}

func errBucketNotFound(bucket string) error {
	return newStoreErr(KindBucketNotFound, &ErrBucketNotFound, bucket, "", nil, "no such bucket")
}

func errBucketVersion(bucket string, oldVer, newVer int64) error {
	return newStoreErr(KindBucketVersion, &ErrBucketVersion, bucket, "", nil,
		"new version %d must be greater than current version %d", newVer, oldVer)
}

func errInvalidBucketName(name, reason string) error {
	return newStoreErr(KindInvalidBucketName, &ErrInvalidBucketName, name, "", nil, "%s", reason)
}

func errInvalidBucketConfig(bucket, reason string) error {
	return newStoreErr(KindInvalidBucketConfig, &ErrInvalidBucketConfig, bucket, "", nil, "%s", reason)
}

func errNotFunction(bucket, name string) error {
	return newStoreErr(KindNotFunction, &ErrNotFunction, bucket, "", nil, "trigger %q is not registered", name)
}

func errInvalidIndexType(bucket, field string, err error) error {
	return newStoreErr(KindInvalidIndexType, &ErrInvalidIndexType, bucket, field, err, "cannot coerce value for indexed field %q", field)
}

func errInvalidQuery(bucket, reason string) error {
	return newStoreErr(KindInvalidQuery, &ErrInvalidQuery, bucket, "", nil, "%s", reason)
}

func errNotIndexed(bucket, field string) error {
	return newStoreErr(KindNotIndexed, &ErrNotIndexed, bucket, field, nil, "field %q is not indexed or is being reindexed", field)
}

func errEtagConflict(bucket, key string, expected, actual string) error {
	return newStoreErr(KindEtagConflict, &ErrEtagConflict, bucket, key, nil, "etag mismatch: expected %q, found %q", expected, actual)
}

func errObjectNotFound(bucket, key string) error {
	return newStoreErr(KindObjectNotFound, &ErrObjectNotFound, bucket, key, nil, "no such object")
}

func errUniqueAttribute(bucket, field string, err error) error {
	return newStoreErr(KindUniqueAttribute, &ErrUniqueAttribute, bucket, field, err, "unique constraint violated on %q", field)
}

func errTransient(bucket string, err error) error {
	return newStoreErr(KindTransient, &ErrTransient, bucket, "", err, "transient database error")
}

func errInternal(bucket string, err error) error {
	return newStoreErr(KindInternal, &ErrInternal, bucket, "", err, "internal error")
}

// IsRetryable reports whether err is a transient error the caller may
// retry outside the pipeline.
func IsRetryable(err error) bool {
	return ErrTransient.Has(err)
}

// ErrorKind extracts the Kind carried by err, defaulting to KindInternal
// when err was not produced by this package.
func ErrorKind(err error) Kind {
	var se *StoreError
	for err != nil {
		if s, ok := err.(*StoreError); ok {
			se = s
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if se == nil {
		return KindInternal
	}
	return se.Kind
}
