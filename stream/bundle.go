// Package stream decodes the entries of large FHIR Bundles one at a time,
// so that terminology bundles such as the core valuesets.json can be loaded
// without holding the whole document in memory.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Entry is one decoded bundle entry.
type Entry struct {
	// Index is the position of the entry in the bundle, or -1 for errors
	// that concern the bundle as a whole.
	Index int

	FullURL      string
	ResourceType string
	ResourceID   string

	// Resource is the raw JSON of the entry's resource. It is empty for
	// entries without a resource.
	Resource json.RawMessage

	Error error
}

type rawEntry struct {
	FullURL  string          `json:"fullUrl"`
	Resource json.RawMessage `json:"resource"`
}

type header struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}

// Decoder streams bundle entries.
type Decoder struct {
	bufferSize int
}

// NewDecoder creates a decoder with a default channel buffer.
func NewDecoder() *Decoder {
	return &Decoder{bufferSize: 100}
}

// WithBufferSize sets the channel buffer size.
func (d *Decoder) WithBufferSize(size int) *Decoder {
	if size > 0 {
		d.bufferSize = size
	}
	return d
}

// Entries reads a bundle from r and emits its entries in order. The channel
// is closed when the bundle ends, on a bundle-level error, or when ctx is
// done.
func (d *Decoder) Entries(ctx context.Context, r io.Reader) <-chan Entry {
	out := make(chan Entry, d.bufferSize)

	go func() {
		defer close(out)
		emit := func(e Entry) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		dec := json.NewDecoder(r)
		token, err := dec.Token()
		if err != nil {
			emit(Entry{Index: -1, Error: fmt.Errorf("failed to read bundle: %w", err)})
			return
		}
		if delim, ok := token.(json.Delim); !ok || delim != '{' {
			emit(Entry{Index: -1, Error: fmt.Errorf("expected object start, got %v", token)})
			return
		}

		for dec.More() {
			if ctx.Err() != nil {
				emit(Entry{Index: -1, Error: ctx.Err()})
				return
			}

			token, err := dec.Token()
			if err != nil {
				emit(Entry{Index: -1, Error: fmt.Errorf("failed to read field: %w", err)})
				return
			}
			field, _ := token.(string)

			if field == "entry" {
				d.entries(ctx, dec, emit)
				return
			}

			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				emit(Entry{Index: -1, Error: fmt.Errorf("failed to skip field %s: %w", field, err)})
				return
			}
		}
	}()

	return out
}

func (d *Decoder) entries(ctx context.Context, dec *json.Decoder, emit func(Entry) bool) {
	token, err := dec.Token()
	if err != nil {
		emit(Entry{Index: -1, Error: fmt.Errorf("failed to read entry array: %w", err)})
		return
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		emit(Entry{Index: -1, Error: fmt.Errorf("expected array start, got %v", token)})
		return
	}

	for index := 0; dec.More(); index++ {
		if ctx.Err() != nil {
			emit(Entry{Index: index, Error: ctx.Err()})
			return
		}

		var raw rawEntry
		if err := dec.Decode(&raw); err != nil {
			// The decoder cannot resynchronize after a syntax error.
			emit(Entry{Index: index, Error: fmt.Errorf("failed to decode entry %d: %w", index, err)})
			return
		}

		e := Entry{Index: index, FullURL: raw.FullURL, Resource: raw.Resource}
		if len(raw.Resource) > 0 {
			var h header
			if err := json.Unmarshal(raw.Resource, &h); err != nil {
				e.Error = fmt.Errorf("entry %d: %w", index, err)
			}
			e.ResourceType, e.ResourceID = h.ResourceType, h.ID
		}
		if !emit(e) {
			return
		}
	}
}

// Summary aggregates a stream of entries.
type Summary struct {
	Entries int
	ByType  map[string]int
	Errors  []error
}

// Summarize drains entries and counts them by resource type.
func Summarize(entries <-chan Entry) *Summary {
	s := &Summary{ByType: make(map[string]int)}
	for e := range entries {
		if e.Error != nil {
			s.Errors = append(s.Errors, e.Error)
			continue
		}
		s.Entries++
		if e.ResourceType != "" {
			s.ByType[e.ResourceType]++
		}
	}
	return s
}

// String returns a human-readable summary.
func (s *Summary) String() string {
	return fmt.Sprintf("%d entries, %d errors", s.Entries, len(s.Errors))
}
