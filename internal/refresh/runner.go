package refresh

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// defaultTailSize bounds how much indexer output is kept for diagnostics
const defaultTailSize = 4096

// Result describes a finished indexer process
type Result struct {
	ExitCode int
	// Output is the tail of the combined stdout and stderr
	Output string
}

// Runner starts an external command and waits for it to exit.
// A non-nil error means the command could not be started or waited for.
type Runner interface {
	Run(name string, args []string) (Result, error)
}

// ExecRunner runs commands with os/exec. Commands are not bound to a
// context: once started, an indexer run always completes.
type ExecRunner struct {
	TailSize int
}

// Run implements Runner
func (r ExecRunner) Run(name string, args []string) (Result, error) {
	tailSize := r.TailSize
	if tailSize <= 0 {
		tailSize = defaultTailSize
	}

	out := &outputWriter{command: name, tailSize: tailSize}
	cmd := exec.Command(name, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	out.flush()

	result := Result{Output: out.tailString()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 when the process was killed by a signal
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}

// outputWriter forwards indexer output to the debug log line by line and
// keeps the last tailSize bytes. exec serializes writes because Stdout and
// Stderr are the same writer.
type outputWriter struct {
	command  string
	tailSize int
	partial  []byte
	tail     []byte
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.tail = append(w.tail, p...)
	if over := len(w.tail) - w.tailSize; over > 0 {
		w.tail = w.tail[over:]
	}

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func (w *outputWriter) flush() {
	if len(w.partial) > 0 {
		w.logLine(w.partial)
		w.partial = nil
	}
}

func (w *outputWriter) logLine(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if text == "" {
		return
	}
	log.Debug().Str("command", w.command).Msg(text)
}

func (w *outputWriter) tailString() string {
	return strings.TrimSpace(string(w.tail))
}
