package rules

import (
	"fmt"

	"fintrack/internal/apperr"
)

// Priorities assigns priority = len(ids) - index, so the first id ranks highest.
func Priorities(ids []int64) (map[int64]int, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("rule_ids", "must not be empty")
	}
	out := make(map[int64]int, len(ids))
	for i, id := range ids {
		if _, dup := out[id]; dup {
			return nil, apperr.Validation("rule_ids", "duplicate rule id %d", id)
		}
		out[id] = len(ids) - i
	}
	return out, nil
}

// Move returns a new order with the element at from relocated to index to,
// the shape of one drag-and-drop gesture. The input slice is not modified.
func Move(order []int64, from, to int) ([]int64, error) {
	if from < 0 || from >= len(order) || to < 0 || to >= len(order) {
		return nil, apperr.Validation("move", "%s", fmt.Sprintf("index out of range: from=%d to=%d len=%d", from, to, len(order)))
	}
	out := make([]int64, 0, len(order))
	moved := order[from]
	for i, id := range order {
		if i == from {
			continue
		}
		out = append(out, id)
	}
	out = append(out[:to], append([]int64{moved}, out[to:]...)...)
	return out, nil
}
