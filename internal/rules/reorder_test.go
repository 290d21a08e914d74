package rules

import (
	"testing"

	"fintrack/internal/apperr"

	"github.com/stretchr/testify/require"
)

func TestPrioritiesStrictlyDecreaseAlongOrder(t *testing.T) {
	ids := []int64{30, 10, 20}
	p, err := Priorities(ids)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{30: 3, 10: 2, 20: 1}, p)

	for i := 1; i < len(ids); i++ {
		require.Greater(t, p[ids[i-1]], p[ids[i]])
	}
}

func TestPrioritiesRejectsEmptyAndDuplicates(t *testing.T) {
	_, err := Priorities(nil)
	require.True(t, apperr.IsValidation(err))

	_, err = Priorities([]int64{1, 2, 1})
	require.True(t, apperr.IsValidation(err))
}

func TestMove(t *testing.T) {
	order := []int64{1, 2, 3, 4}

	tests := []struct {
		from, to int
		want     []int64
	}{
		{0, 3, []int64{2, 3, 4, 1}},
		{3, 0, []int64{4, 1, 2, 3}},
		{1, 2, []int64{1, 3, 2, 4}},
		{2, 2, []int64{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		got, err := Move(order, tt.from, tt.to)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
	require.Equal(t, []int64{1, 2, 3, 4}, order)

	_, err := Move(order, 4, 0)
	require.True(t, apperr.IsValidation(err))
	_, err = Move(order, 0, -1)
	require.True(t, apperr.IsValidation(err))
}
