// Package store persists the synced dataset: exams, results, students and
// task submissions, each kept as one JSON document under a well-known key.
//
// Two kinds of adapters satisfy Repository. The remote adapter is the shared
// cloud copy; the local adapters are caches that keep the service usable when
// the cloud is unreachable. Choosing between them is the caller's job.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/smada/genius-backend/internal/model"
)

// Key names one collection inside the dataset.
type Key string

const (
	KeyExams       Key = "exams"
	KeyResults     Key = "results"
	KeyStudents    Key = "students"
	KeySubmissions Key = "submissions"
)

// Keys lists every collection in load order.
var Keys = []Key{KeyExams, KeyResults, KeyStudents, KeySubmissions}

// Valid reports whether k is one of Keys.
func (k Key) Valid() bool {
	for _, known := range Keys {
		if k == known {
			return true
		}
	}
	return false
}

// Mode tells where a write ended up.
type Mode string

const (
	ModeCloud Mode = "cloud"
	ModeLocal Mode = "local"
)

// Ack confirms a write.
type Ack struct {
	Key  Key  `json:"key"`
	Mode Mode `json:"mode"`
}

// Snapshot maps keys to their raw JSON value. Missing keys were never saved.
type Snapshot map[Key]json.RawMessage

// Unsubscribe stops a change subscription. It is safe to call more than once.
type Unsubscribe func()

// ErrUnavailable marks a backend that cannot be reached at all, as opposed to
// one that rejected a particular request.
var ErrUnavailable = errors.New("store unavailable")

// Repository is implemented by every dataset backend.
type Repository interface {
	// Load returns every key the backend holds.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the value stored under key.
	Save(ctx context.Context, key Key, value any) (Ack, error)
	// Subscribe calls onChange with the keys that changed, after every write
	// made through any client of the same backend.
	Subscribe(ctx context.Context, onChange func(Snapshot)) (Unsubscribe, error)
}

// Dataset is the decoded form of a Snapshot.
type Dataset struct {
	Exams       []model.Exam       `json:"exams"`
	Results     []model.Result     `json:"results"`
	Students    []model.Student    `json:"students"`
	Submissions []model.Submission `json:"submissions"`
}

// Decode fills the collections present in snap. Keys absent from snap leave
// the matching collection untouched.
func (d *Dataset) Decode(snap Snapshot) error {
	for key, raw := range snap {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var err error
		switch key {
		case KeyExams:
			err = json.Unmarshal(raw, &d.Exams)
		case KeyResults:
			err = json.Unmarshal(raw, &d.Results)
		case KeyStudents:
			err = json.Unmarshal(raw, &d.Students)
		case KeySubmissions:
			err = json.Unmarshal(raw, &d.Submissions)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return nil
}

// Value returns the collection stored under key.
func (d *Dataset) Value(key Key) any {
	switch key {
	case KeyExams:
		return nonNil(d.Exams)
	case KeyResults:
		return nonNil(d.Results)
	case KeyStudents:
		return nonNil(d.Students)
	case KeySubmissions:
		return nonNil(d.Submissions)
	}
	return nil
}

// Snapshot encodes every collection.
func (d *Dataset) Snapshot() (Snapshot, error) {
	snap := make(Snapshot, len(Keys))
	for _, key := range Keys {
		raw, err := json.Marshal(d.Value(key))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		snap[key] = raw
	}
	return snap, nil
}

// Clone copies the collection slices so edits to the copy do not reach d.
// Elements are copied shallowly.
func (d *Dataset) Clone() Dataset {
	return Dataset{
		Exams:       slices.Clone(d.Exams),
		Results:     slices.Clone(d.Results),
		Students:    slices.Clone(d.Students),
		Submissions: slices.Clone(d.Submissions),
	}
}

// Take replaces the collection under key with the one held by src.
func (d *Dataset) Take(key Key, src *Dataset) {
	switch key {
	case KeyExams:
		d.Exams = src.Exams
	case KeyResults:
		d.Results = src.Results
	case KeyStudents:
		d.Students = src.Students
	case KeySubmissions:
		d.Submissions = src.Submissions
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func encode(key Key, value any) (json.RawMessage, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("unknown key %q", key)
	}
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return raw, nil
}
