package lidar

import (
	"io"
	"log"
	"sync"
	"time"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer // dropped frames, calibration warnings, lifecycle
	Diag  io.Writer // malformed packets, per-revolution summaries
	Trace io.Writer // per-frame emission detail
}

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger

	limitMu   sync.Mutex
	lastWarns = map[string]time.Time{}
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[velodyne] ", log.LstdFlags|log.Lmicroseconds)
}

func logf(l **log.Logger, format string, args ...interface{}) {
	mu.RLock()
	lg := *l
	mu.RUnlock()
	if lg != nil {
		lg.Printf(format, args...)
	}
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) { logf(&opsLogger, format, args...) }

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) { logf(&diagLogger, format, args...) }

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) { logf(&traceLogger, format, args...) }

// opsEvery logs to the ops stream at most once per interval for a given key.
// The decode path can hit the same condition ten times a second.
func opsEvery(key string, interval time.Duration, format string, args ...interface{}) {
	now := time.Now()
	limitMu.Lock()
	if last, ok := lastWarns[key]; ok && now.Sub(last) < interval {
		limitMu.Unlock()
		return
	}
	lastWarns[key] = now
	limitMu.Unlock()
	Opsf(format, args...)
}
