package sxlock

import (
	"io"
	"log"

	"github.com/storagesync/sxlock/internal/platform"
)

// Logger is the minimal logging surface the locks write to.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// NewTimingLog returns a Logger suitable for WithTimingLog, writing one
// line per event to w with microsecond wall-clock prefixes.
func NewTimingLog(w io.Writer) *log.Logger {
	return log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// timing emits entry and exit records around lock operations:
//
//	--> <op> <thread id> <epoch ns> <lock name>
//	<-- <op> <thread id> <epoch ns> <lock name>
//
// A nil timing is disabled and costs one branch.
type timing struct {
	log  Logger
	name string
}

func (t *timing) begin(op string, now int64) {
	t.log.Printf("--> %s %d %d %s", op, platform.ThreadID(), now, t.name)
}

func (t *timing) end(op string, now int64) {
	t.log.Printf("<-- %s %d %d %s", op, platform.ThreadID(), now, t.name)
}
