package programmer

// State is the session state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateDetecting
	StateReading
	StateWriting
	StateErasing
	StateVerifying
	StateFailed
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateDetecting: "detecting",
	StateReading:   "reading",
	StateWriting:   "writing",
	StateErasing:   "erasing",
	StateVerifying: "verifying",
	StateFailed:    "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Operation names a job.
type Operation string

// Operations.
const (
	OpDetect Operation = "detect"
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpErase  Operation = "erase"
	OpVerify Operation = "verify"
)
