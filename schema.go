package bucketstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// IndexType is the semantic type declared for an indexed field. It governs
// both JSON<->column coercion (coerce.go) and the SQL type used for the
// backing column (evolve.go).
type IndexType string

const (
	TypeString  IndexType = "string"
	TypeNumber  IndexType = "number"
	TypeBoolean IndexType = "boolean"
	TypeIP      IndexType = "ip"
	TypeSubnet  IndexType = "subnet"
)

func (t IndexType) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeIP, TypeSubnet:
		return true
	default:
		return false
	}
}

// IndexField describes one indexed field of a bucket: its semantic type,
// whether it is stored as an array, and whether the backing column carries
// a uniqueness constraint.
type IndexField struct {
	Type   IndexType `json:"type"`
	Array  bool      `json:"-"`
	Unique bool      `json:"unique,omitempty"`
}

// MarshalJSON renders array types in their bracketed form, e.g. "[string]".
func (f IndexField) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type   string `json:"type"`
		Unique bool   `json:"unique,omitempty"`
	}
	t := string(f.Type)
	if f.Array {
		t = "[" + t + "]"
	}
	return json.Marshal(wire{Type: t, Unique: f.Unique})
}

func (f *IndexField) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type   json.RawMessage `json:"type"`
		Unique bool            `json:"unique"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if err := rejectUnknownKeys(data, "type", "unique"); err != nil {
		return err
	}
	var raw string
	if err := json.Unmarshal(wire.Type, &raw); err != nil {
		return fmt.Errorf("type must be a string: %w", err)
	}
	array := false
	if len(raw) >= 2 && raw[0] == '[' && raw[len(raw)-1] == ']' {
		array = true
		raw = raw[1 : len(raw)-1]
	}
	t := IndexType(raw)
	if !t.valid() {
		return fmt.Errorf("unknown index type %q", raw)
	}
	f.Type = t
	f.Array = array
	f.Unique = wire.Unique
	return nil
}

func rejectUnknownKeys(data []byte, allowed ...string) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	for k := range m {
		if !ok[k] {
			return fmt.Errorf("unknown key %q", k)
		}
	}
	return nil
}

// IndexMap is the set of indexed fields declared by a bucket, keyed by
// field name.
type IndexMap map[string]IndexField

// BucketOptions carries the bucket's schema version.
type BucketOptions struct {
	Version int64 `json:"version"`
}

// ReindexActive maps a bucket schema version to the set of fields whose
// backing columns are still being backfilled for rows whose _rver is
// below that version.
type ReindexActive map[int64]map[string]bool

// MarshalJSON renders each version's field set as a sorted string slice,
// since JSON object keys can only encode int64 versions as strings.
func (r ReindexActive) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(r))
	for ver, fields := range r {
		if len(fields) == 0 {
			continue
		}
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, f)
		}
		sort.Strings(names)
		out[fmt.Sprintf("%d", ver)] = names
	}
	return json.Marshal(out)
}

func (r *ReindexActive) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ReindexActive, len(raw))
	for verStr, names := range raw {
		var ver int64
		if _, err := fmt.Sscanf(verStr, "%d", &ver); err != nil {
			return fmt.Errorf("reindex_active: bad version key %q: %w", verStr, err)
		}
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		out[ver] = set
	}
	*r = out
	return nil
}

// HasField reports whether field appears in any version's active-reindex
// set, meaning it must be treated as unusable by the filter compiler.
func (r ReindexActive) HasField(field string) bool {
	for _, fields := range r {
		if fields[field] {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, used when the evolution engine consolidates a
// new set of fields into the existing map without mutating the cached
// descriptor concurrent readers may hold.
func (r ReindexActive) Clone() ReindexActive {
	out := make(ReindexActive, len(r))
	for ver, fields := range r {
		fc := make(map[string]bool, len(fields))
		for f := range fields {
			fc[f] = true
		}
		out[ver] = fc
	}
	return out
}

// BucketConfig is the caller-supplied definition passed to CreateBucket
// and UpdateBucket.
type BucketConfig struct {
	Index   IndexMap      `json:"index"`
	Pre     []string      `json:"pre,omitempty"`
	Post    []string      `json:"post,omitempty"`
	Options BucketOptions `json:"options"`
}

// BucketDescriptor is the persisted, cached schema for a bucket, including
// the resolved trigger callables and in-flight reindex bookkeeping.
type BucketDescriptor struct {
	Name          string
	Index         IndexMap
	Pre           []string
	Post          []string
	PreFuncs      []TriggerFunc
	PostFuncs     []TriggerFunc
	Options       BucketOptions
	ReindexActive ReindexActive
	MTime         time.Time
}

// IndexedFields returns the descriptor's indexed field names, sorted for
// deterministic DDL ordering.
func (d *BucketDescriptor) IndexedFields() []string {
	names := make([]string, 0, len(d.Index))
	for f := range d.Index {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// Usable reports whether field can appear as a filter leaf: it must be
// declared in the index map and not currently being backfilled.
func (d *BucketDescriptor) Usable(field string) bool {
	if isSystemField(field) {
		return true
	}
	if _, ok := d.Index[field]; !ok {
		return false
	}
	return !d.ReindexActive.HasField(field)
}

var systemFields = map[string]bool{
	"_etag": true, "_key": true, "_id": true, "_mtime": true, "_txn_snap": true,
}

func isSystemField(name string) bool {
	return systemFields[name]
}

var bucketNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)

var reservedBucketNames = map[string]bool{
	"moray": true, "search": true,
}

// ValidateBucketName checks the name regex and reserved-name set.
func ValidateBucketName(name string) error {
	if !bucketNameRE.MatchString(name) {
		return errInvalidBucketName(name, "must match ^[A-Za-z][A-Za-z0-9_]{0,62}$")
	}
	if reservedBucketNames[name] {
		return errInvalidBucketName(name, "reserved bucket name")
	}
	return nil
}
