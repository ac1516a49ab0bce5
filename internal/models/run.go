package models

// Mode is the execution mode derived from the request flags.
type Mode int

// Run modes.
const (
	// ModeNoop never sends commands; it may still snapshot configuration.
	ModeNoop Mode = iota
	// ModeDry snapshots configuration but never sends commands.
	ModeDry
	// ModeExec sends commands for real.
	ModeExec
)

func (m Mode) String() string {
	switch m {
	case ModeDry:
		return "dry"
	case ModeExec:
		return "exec"
	default:
		return "noop"
	}
}

// RunRequest describes one fleet run.
type RunRequest struct {
	Targets  []HostTarget
	Commands []string
	Exec     bool
	Config   bool
	Dry      bool
}

// Mode resolves the request flags. Dry always wins over Exec.
func (r RunRequest) Mode() Mode {
	switch {
	case r.Dry:
		return ModeDry
	case r.Exec:
		return ModeExec
	default:
		return ModeNoop
	}
}

// RunResponse is the flattened, host-labeled result of a run.
type RunResponse struct {
	Output []string `json:"output"`
	Diff   []string `json:"diff"`
}

// RunResult is the outcome of one fleet request, one HostResult per target
// in target order.
type RunResult struct {
	Job   Job
	Hosts []HostResult
}
