package session

import (
	"errors"
	"maps"
)

// ErrPositionOutOfRange is returned for a visual position with no question.
var ErrPositionOutOfRange = errors.New("question position out of range")

// Tracker records the selected option per question, keyed by the question's
// original index. It is not safe for concurrent use; Session guards it.
type Tracker struct {
	order   []int
	answers map[int]int
}

// NewTracker creates a Tracker over a display order from Permutation.
func NewTracker(order []int) *Tracker {
	return &Tracker{
		order:   order,
		answers: make(map[int]int, len(order)),
	}
}

// Original maps a visual position to the original question index.
func (t *Tracker) Original(position int) (int, error) {
	if position < 0 || position >= len(t.order) {
		return 0, ErrPositionOutOfRange
	}
	return t.order[position], nil
}

// Select records option for the question shown at position, replacing any
// earlier choice. It returns the original index of that question.
func (t *Tracker) Select(position, option int) (int, error) {
	original, err := t.Original(position)
	if err != nil {
		return 0, err
	}
	t.answers[original] = option
	return original, nil
}

// IsAnswered reports whether the question at original index has a selection.
func (t *Tracker) IsAnswered(original int) bool {
	_, ok := t.answers[original]
	return ok
}

// Count returns how many questions have been answered.
func (t *Tracker) Count() int {
	return len(t.answers)
}

// Answers returns a copy of the answer map.
func (t *Tracker) Answers() map[int]int {
	return maps.Clone(t.answers)
}

// ByPosition returns the selections keyed by visual position.
func (t *Tracker) ByPosition() map[int]int {
	out := make(map[int]int, len(t.answers))
	for pos, original := range t.order {
		if opt, ok := t.answers[original]; ok {
			out[pos] = opt
		}
	}
	return out
}
