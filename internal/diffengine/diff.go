package diffengine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// ChangeType classifies a change record.
type ChangeType string

// The three kinds of node-level change.
const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// ParseChangeType validates a change-type string from an external source.
func ParseChangeType(s string) (ChangeType, bool) {
	switch ChangeType(s) {
	case Added, Modified, Removed:
		return ChangeType(s), true
	}
	return "", false
}

// timestampLayout is fixed-width (zero-padded microseconds) so that
// lexicographic comparison of rendered timestamps matches chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000"

// FormatTimestamp renders t as UTC ISO-8601 with a literal "Z" suffix and no
// explicit offset, matching the changelog's on-disk format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout) + "Z"
}

// ChangeRecord is one detected addition, modification, or removal at a
// specific node path. Records are immutable once appended to a changelog.
//
// Value is set only for added records; Old for removed and modified records;
// New only for modified records. The custom JSON codec preserves exactly this
// field presence, including null and false leaf values.
type ChangeRecord struct {
	Timestamp string
	Source    string
	Type      ChangeType
	Path      string
	Value     any
	Old       any
	New       any
}

type changeRecordJSON struct {
	Timestamp string     `json:"timestamp"`
	Source    string     `json:"source"`
	Type      ChangeType `json:"type"`
	Path      string     `json:"path"`
	Value     *any       `json:"value,omitempty"`
	Old       *any       `json:"old,omitempty"`
	New       *any       `json:"new,omitempty"`
}

// MarshalJSON emits value/old/new conditionally on the record type so that a
// legitimate null or false leaf is still written out.
func (r ChangeRecord) MarshalJSON() ([]byte, error) {
	shadow := changeRecordJSON{
		Timestamp: r.Timestamp,
		Source:    r.Source,
		Type:      r.Type,
		Path:      r.Path,
	}
	switch r.Type {
	case Added:
		shadow.Value = &r.Value
	case Removed:
		shadow.Old = &r.Old
	case Modified:
		shadow.Old = &r.Old
		shadow.New = &r.New
	}
	return json.Marshal(shadow)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *ChangeRecord) UnmarshalJSON(data []byte) error {
	var shadow changeRecordJSON
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}
	r.Timestamp = shadow.Timestamp
	r.Source = shadow.Source
	r.Type = shadow.Type
	r.Path = shadow.Path
	r.Value, r.Old, r.New = nil, nil, nil
	if shadow.Value != nil {
		r.Value = *shadow.Value
	}
	if shadow.Old != nil {
		r.Old = *shadow.Old
	}
	if shadow.New != nil {
		r.New = *shadow.New
	}
	return nil
}

// ComputeDiff compares two document versions and returns change records
// sorted by path ascending. oldDoc may be nil for a first-seen document.
// All records share the same timestamp and source. A zero timestamp means
// "now". Diffing never fails for well-formed documents.
func ComputeDiff(oldDoc, newDoc Document, source string, timestamp time.Time) []ChangeRecord {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	ts := FormatTimestamp(timestamp)

	var oldNodes map[string]any
	if oldDoc != nil {
		oldNodes = Flatten(oldDoc)
	} else {
		oldNodes = map[string]any{}
	}
	newNodes := Flatten(newDoc)

	paths := make([]string, 0, len(oldNodes)+len(newNodes))
	seen := make(map[string]struct{}, len(oldNodes)+len(newNodes))
	for p := range oldNodes {
		paths = append(paths, p)
		seen[p] = struct{}{}
	}
	for p := range newNodes {
		if _, dup := seen[p]; !dup {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var changes []ChangeRecord
	for _, path := range paths {
		oldValue, inOld := oldNodes[path]
		newValue, inNew := newNodes[path]

		switch {
		case inNew && !inOld:
			changes = append(changes, ChangeRecord{
				Timestamp: ts,
				Source:    source,
				Type:      Added,
				Path:      path,
				Value:     serializeValue(newValue),
			})
		case inOld && !inNew:
			changes = append(changes, ChangeRecord{
				Timestamp: ts,
				Source:    source,
				Type:      Removed,
				Path:      path,
				Old:       serializeValue(oldValue),
			})
		case !reflect.DeepEqual(oldValue, newValue):
			changes = append(changes, ChangeRecord{
				Timestamp: ts,
				Source:    source,
				Type:      Modified,
				Path:      path,
				Old:       serializeValue(oldValue),
				New:       serializeValue(newValue),
			})
		}
	}
	return changes
}

// serializeValue prepares a leaf for JSON storage. Scalars and containers
// pass through; anything else (yaml.v3 can produce time.Time for timestamp
// scalars) is coerced to its string form.
func serializeValue(v any) any {
	switch v.(type) {
	case nil, bool, string, int, int64, uint64, float32, float64:
		return v
	case map[string]any, []any:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
