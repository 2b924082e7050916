package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Link{URI: "https://example.com"}.Validate())
	require.Error(t, Link{URI: "   "}.Validate())
	require.Error(t, Link{}.Validate())
}

func TestRecordSetValidate(t *testing.T) {
	t.Parallel()

	rs := RecordSet{
		Columns: []string{"x", "y"},
		Rows:    [][]string{{"1", "2"}, {"3", "4"}},
	}
	require.NoError(t, rs.Validate())

	rs.Rows = append(rs.Rows, []string{"lonely"})
	require.Error(t, rs.Validate())

	require.Error(t, RecordSet{}.Validate())
}

func TestDedupePreservesOrder(t *testing.T) {
	t.Parallel()

	links := []Link{
		{URI: "https://a"},
		{URI: "https://b"},
		{URI: "https://a", ID: "dup"},
		{URI: "https://c"},
		{URI: "https://b"},
	}
	got := Dedupe(links)
	require.Equal(t, []Link{{URI: "https://a"}, {URI: "https://b"}, {URI: "https://c"}}, got)
}

func TestRemainingFiltersCompleted(t *testing.T) {
	t.Parallel()

	links := []Link{{URI: "https://a"}, {URI: "https://b"}, {URI: "https://c"}}
	completed := map[string]struct{}{"https://b": {}}
	got := Remaining(links, completed)
	require.Equal(t, []Link{{URI: "https://a"}, {URI: "https://c"}}, got)

	require.Equal(t, links, Remaining(links, nil))
}

func TestFatalWrapping(t *testing.T) {
	t.Parallel()

	base := errors.New("disk full")
	err := Fatal("ledger", base)
	require.True(t, IsFatal(err))
	require.ErrorIs(t, err, base)
	require.True(t, IsFatal(fmt.Errorf("outer: %w", err)))

	require.False(t, IsFatal(base))
	require.NoError(t, Fatal("ledger", nil))
}
