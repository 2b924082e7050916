// Package recovery classifies what a previous run left on disk so the
// driver can branch once instead of scattering existence checks.
package recovery

import "os"

// State is the startup classification of prior-run leftovers.
type State int

const (
	// Clean means no ledger and no final output: a fresh run.
	Clean State = iota
	// ResumableCrash means a checkpoint ledger exists; the previous run
	// ended before the merge removed it.
	ResumableCrash
	// StaleOutput means a final output exists without a ledger: leftovers
	// of an unrelated completed run, not a resumable crash.
	StaleOutput
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case ResumableCrash:
		return "resumable-crash"
	case StaleOutput:
		return "stale-output"
	default:
		return "unknown"
	}
}

// Signals are the three filesystem facts recovery is computed from.
type Signals struct {
	LedgerExists bool
	OutputExists bool
	ShardsExist  bool
}

// Probe gathers Signals from the configured paths.
func Probe(ledgerPath, outputPath, shardDir string) Signals {
	return Signals{
		LedgerExists: fileExists(ledgerPath),
		OutputExists: fileExists(outputPath),
		ShardsExist:  dirExists(shardDir),
	}
}

// Classify reduces the signals to one State. The ledger dominates: any
// surviving ledger means the previous run is resumable, whether or not a
// partial output or shard directory also survived.
func Classify(s Signals) State {
	switch {
	case s.LedgerExists:
		return ResumableCrash
	case s.OutputExists:
		return StaleOutput
	default:
		return Clean
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
