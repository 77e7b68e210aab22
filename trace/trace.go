// Package trace implements IInternalTrace: a sink for compiler events and
// per-method, per-stage textual IR dumps, backed by logrus so that output
// can be filtered, structured, and redirected the same way as the rest of
// the corpus's tooling.
package trace

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink is the compiler-facing tracing interface (IInternalTrace of §6).
// A Sink is shared across the worker pool described in §5, so
// implementations must be safe for concurrent use.
type Sink interface {
	// Event logs a compiler-level event not tied to a specific stage dump,
	// e.g. "compilation started" / "compilation finished".
	Event(format string, args ...any)

	// StageDump records the textual IR dump produced by a stage for a
	// given method. Filtered out entirely when the sink's filter rejects
	// (method, stage).
	StageDump(method, stage string, dump func() string)

	// Error records a stage failure, always emitted regardless of filter.
	Error(method, stage string, err error)
}

// Filter decides whether a given (method, stage) pair's dump should be
// captured. A nil Filter captures everything.
type Filter func(method, stage string) bool

// logrusSink is the default Sink, one logrus.Entry per (method, stage).
type logrusSink struct {
	log    *logrus.Logger
	filter Filter

	mu      sync.Mutex
	entries map[string]*logrus.Entry
}

// New returns a Sink writing structured entries through logrus. level
// controls the logger's minimum level; a nil filter captures every stage
// dump.
func New(level logrus.Level, filter Filter) Sink {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusSink{log: l, filter: filter, entries: make(map[string]*logrus.Entry)}
}

func (s *logrusSink) Event(format string, args ...any) {
	s.log.Infof(format, args...)
}

func (s *logrusSink) StageDump(method, stage string, dump func() string) {
	if s.filter != nil && !s.filter(method, stage) {
		return
	}
	s.entry(method, stage).Debug(dump())
}

func (s *logrusSink) Error(method, stage string, err error) {
	s.entry(method, stage).Error(err)
}

func (s *logrusSink) entry(method, stage string) *logrus.Entry {
	key := method + "/" + stage
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = s.log.WithFields(logrus.Fields{"method": method, "stage": stage})
		s.entries[key] = e
	}
	return e
}

// Discard is a Sink that drops everything; useful for tests and for
// compilations run with tracing disabled.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Event(string, ...any)                  {}
func (discardSink) StageDump(string, string, func() string) {}
func (discardSink) Error(string, string, error)           {}

// BlockHeader formats the "Block #<n>" / "L_XXXX" header used by the
// explorer UI to slice per-stage dumps (§6 "Produces").
func BlockHeader(n int, label uint32) string {
	return fmt.Sprintf("Block #%d\nL_%04X:", n, label)
}
