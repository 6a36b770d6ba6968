package bucketstore

import (
	"fmt"
)

// ValidateBucketConfig checks a caller-supplied bucket configuration: the
// index map's shape and field types, the options block, and that every
// named trigger is registered. It does not check the bucket name (see
// ValidateBucketName): CreateBucket validates that separately against the
// name supplied out of band from the config body, and UpdateBucket only
// acts on a name already present in buckets_config.
func ValidateBucketConfig(name string, cfg BucketConfig, registry *TriggerRegistry) error {
	if cfg.Options.Version < 0 {
		return errInvalidBucketConfig(name, "options.version must not be negative")
	}
	for field, idx := range cfg.Index {
		if field == "" {
			return errInvalidBucketConfig(name, "index field name must not be empty")
		}
		if isSystemField(field) {
			return errInvalidBucketConfig(name, fmt.Sprintf("index field %q collides with a system field", field))
		}
		if !idx.Type.valid() {
			return errInvalidBucketConfig(name, fmt.Sprintf("index field %q: unknown type %q", field, idx.Type))
		}
	}
	for _, n := range cfg.Pre {
		if !registry.has(n) {
			return errNotFunction(name, n)
		}
	}
	for _, n := range cfg.Post {
		if !registry.has(n) {
			return errNotFunction(name, n)
		}
	}
	return nil
}
