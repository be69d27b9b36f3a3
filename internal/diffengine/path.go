package diffengine

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step in a node path: a mapping key or a sequence index.
type Segment interface{ isSegment() }

// Key addresses a mapping entry by its string key.
type Key string

// Index addresses a sequence element by position.
type Index int

func (Key) isSegment()   {}
func (Index) isSegment() {}

// InvalidPathError reports a path string that cannot be parsed.
type InvalidPathError struct {
	Path   string
	Pos    int
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q at position %d: %s", e.Path, e.Pos, e.Reason)
}

// Render converts segments back into dot/bracket notation.
// The first key segment is rendered bare, later keys are prefixed with a dot,
// and index segments are rendered as [N] regardless of position.
func Render(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		switch s := seg.(type) {
		case Key:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(string(s))
		case Index:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(int(s)))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Parse splits a dot/bracket path into typed segments. The empty path yields
// no segments, which denotes the whole document. Keys containing the literal
// characters '.', '[' or ']' are ambiguous and cannot round-trip; they are
// parsed as if they were structure.
func Parse(path string) ([]Segment, error) {
	var segments []Segment
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, Key(current.String()))
			current.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '.':
			flush()
		case '[':
			flush()
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return nil, &InvalidPathError{Path: path, Pos: i, Reason: "missing closing ']'"}
			}
			j += i
			idx, err := strconv.Atoi(path[i+1 : j])
			if err != nil || idx < 0 {
				return nil, &InvalidPathError{
					Path:   path,
					Pos:    i + 1,
					Reason: fmt.Sprintf("index %q is not a non-negative integer", path[i+1:j]),
				}
			}
			segments = append(segments, Index(idx))
			i = j
		default:
			current.WriteByte(path[i])
		}
	}
	flush()
	return segments, nil
}

// NodeValue resolves a path inside a nested document. The second return is
// false when any segment does not exist or does not match the shape of the
// data at that point. An empty path resolves to the document itself.
func NodeValue(data any, path string) (any, bool, error) {
	if path == "" {
		return data, true, nil
	}
	segments, err := Parse(path)
	if err != nil {
		return nil, false, err
	}
	current := data
	for _, seg := range segments {
		switch s := seg.(type) {
		case Index:
			seq, ok := current.([]any)
			if !ok || int(s) < 0 || int(s) >= len(seq) {
				return nil, false, nil
			}
			current = seq[int(s)]
		case Key:
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false, nil
			}
			v, present := m[string(s)]
			if !present {
				return nil, false, nil
			}
			current = v
		}
	}
	return current, true, nil
}
