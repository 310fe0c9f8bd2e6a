package programmer

import (
	"time"

	"github.com/moffa90/go-ch341prog/eeprom"
	"github.com/moffa90/go-ch341prog/memory"
)

// Phase names the step a job is in.
type Phase string

// Job phases.
const (
	PhaseDetecting Phase = "detecting"
	PhaseReading   Phase = "reading"
	PhaseWriting   Phase = "writing"
	PhaseErasing   Phase = "erasing"
	PhaseVerifying Phase = "verifying"
)

// Progress contains information about the progress of a job.
// Passed to ProgressCallback after every page.
type Progress struct {
	// Phase is the current job phase
	Phase Phase

	// BytesDone is the number of bytes processed in this phase
	BytesDone int

	// BytesTotal is the number of bytes this phase will process
	BytesTotal int

	// Percentage is the completion percentage of this phase (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the job started
	ElapsedTime time.Duration
}

// ProgressCallback is called from the worker goroutine to report progress.
// Implementations should return quickly to avoid stalling the job.
//
// Example:
//
//	sess := programmer.New(handle,
//	    programmer.WithProgressCallback(func(p programmer.Progress) {
//	        fmt.Printf("[%s] %d/%d bytes\n", p.Phase, p.BytesDone, p.BytesTotal)
//	    }),
//	)
type ProgressCallback func(Progress)

// Result is the outcome of a job.
type Result struct {
	// Op is the operation the job ran
	Op Operation

	// Profile is the chip the job ran against
	Profile eeprom.Profile

	// Offset is the first offset read (Read jobs only)
	Offset int

	// Data holds the bytes read (Read jobs only)
	Data []byte

	// Elapsed is the total job duration
	Elapsed time.Duration

	// Err is nil on success, otherwise an *OperationError
	Err error
}

// Image returns the data of a Read job as a memory image.
func (r Result) Image() *memory.Image {
	return memory.FromBytes(uint32(r.Offset), r.Data)
}

// ResultCallback is called from the worker goroutine when a job ends.
type ResultCallback func(Result)

// Logger is an optional logging interface that can be provided to the session.
// This allows integration with any logging framework; *slog.Logger
// satisfies it.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...any) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...any)  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...any) { log.Println(msg, kv) }
//
//	sess := programmer.New(handle, programmer.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...any)

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...any)

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...any)
}
