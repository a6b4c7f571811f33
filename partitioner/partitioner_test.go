package partitioner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDay(t *testing.T) {
	f := Functions["toDay"]

	day, err := f(map[string]any{"hey": "ho"}, []string{"now()"})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(time.Now().Day()), day)

	day, err = f(map[string]any{"t": "2022-01-24T00:00:00.000Z"}, []string{"t"})
	require.NoError(t, err)
	assert.Equal(t, "24", day)

	day, err = f(map[string]any{"t": 1672406408279.0}, []string{"t"})
	require.NoError(t, err)
	assert.Equal(t, "30", day)

	_, err = f(map[string]any{"t": 1672406408279}, []string{"t"})
	assert.ErrorIs(t, err, ErrInvalidColumnType)

	_, err = f(map[string]any{"t": "2022-01-24T00:00:00.000Z"}, nil)
	assert.ErrorIs(t, err, ErrMissingArgs)

	_, err = f(map[string]any{"other": "x"}, []string{"t"})
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestGetRowPartition(t *testing.T) {
	row := map[string]any{"t": "2022-01-24T00:00:00.000Z", "user": "u1"}
	plans := []PartitionPlan{
		{Func: "toYear", Args: []string{"t"}, As: "year"},
		{Func: "toMonth", Args: []string{"t"}, As: "month"},
		{Func: "toDay", Args: []string{"t"}, As: "day"},
	}

	path, err := GetRowPartition(row, plans)
	require.NoError(t, err)
	assert.Equal(t, "year=2022/month=1/day=24", path)

	_, err = GetRowPartition(row, []PartitionPlan{{Func: "toNothing", As: "x"}})
	assert.ErrorIs(t, err, ErrFuncNotFound)
}

func TestGetRowPartitionEmptyPlan(t *testing.T) {
	// rows without a partitioner all land on the empty partition path
	path, err := GetRowPartition(map[string]any{"a": 1.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", path)
}
