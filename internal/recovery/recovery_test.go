package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		signals Signals
		want    State
	}{
		{"nothing on disk", Signals{}, Clean},
		{"only shards", Signals{ShardsExist: true}, Clean},
		{"ledger alone", Signals{LedgerExists: true}, ResumableCrash},
		{"ledger and output", Signals{LedgerExists: true, OutputExists: true}, ResumableCrash},
		{"ledger output shards", Signals{LedgerExists: true, OutputExists: true, ShardsExist: true}, ResumableCrash},
		{"output without ledger", Signals{OutputExists: true}, StaleOutput},
		{"output and shards", Signals{OutputExists: true, ShardsExist: true}, StaleOutput},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.signals))
		})
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	ledger := filepath.Join(tmp, "completed.txt")
	output := filepath.Join(tmp, "out.csv")
	shards := filepath.Join(tmp, "shards")

	s := Probe(ledger, output, shards)
	require.False(t, s.LedgerExists)
	require.False(t, s.OutputExists)
	require.False(t, s.ShardsExist)

	require.NoError(t, os.WriteFile(ledger, []byte("https://a\n"), 0o600))
	require.NoError(t, os.MkdirAll(shards, 0o750))

	s = Probe(ledger, output, shards)
	require.True(t, s.LedgerExists)
	require.False(t, s.OutputExists)
	require.True(t, s.ShardsExist)

	// A directory where the output file should be does not count.
	require.NoError(t, os.MkdirAll(output, 0o750))
	s = Probe(ledger, output, shards)
	require.False(t, s.OutputExists)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "clean", Clean.String())
	require.Equal(t, "resumable-crash", ResumableCrash.String())
	require.Equal(t, "stale-output", StaleOutput.String())
	require.Equal(t, "unknown", State(99).String())
}
