// Package telemetry records coarse per-operation traces. A finished trace is
// logged when it ran past the slow threshold or was picked by sampling.
package telemetry

import (
	"math/rand/v2"
	"sync"
	"time"

	"groupchat/pkg/state/logger"
	"groupchat/pkg/timeutil"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

type Trace struct {
	Name     string
	Start    time.Time
	Steps    []Step
	TotalMS  float64
	lastMark time.Time
	tel      *Telemetry
}

// Sink receives finished traces that passed the sampling/slow filter.
type Sink func(tr *Trace, slow bool)

type Telemetry struct {
	mu         sync.Mutex
	sampleRate float64
	slow       time.Duration
	sample     func() float64
	sink       Sink
}

var (
	globalMu sync.RWMutex
	tel      *Telemetry
)

// Init installs the global telemetry instance.
func Init(sampleRate float64, slow time.Duration) {
	t := New(sampleRate, slow, nil)
	globalMu.Lock()
	tel = t
	globalMu.Unlock()
}

// Track starts a trace on the global instance. Without Init the trace is
// inert.
func Track(name string) *Trace {
	globalMu.RLock()
	t := tel
	globalMu.RUnlock()
	if t == nil {
		now := timeutil.Now()
		return &Trace{Name: name, Start: now, lastMark: now}
	}
	return t.Track(name)
}

// New creates a telemetry instance. A nil sink logs through the logger.
func New(sampleRate float64, slow time.Duration, sink Sink) *Telemetry {
	if sink == nil {
		sink = logSink
	}
	return &Telemetry{sampleRate: sampleRate, slow: slow, sample: rand.Float64, sink: sink}
}

func logSink(tr *Trace, slow bool) {
	args := []any{"name", tr.Name, "total_ms", tr.TotalMS}
	for _, s := range tr.Steps {
		args = append(args, "step_"+s.Name, s.Duration)
	}
	if slow {
		logger.Warn("trace_slow", args...)
		return
	}
	logger.Debug("trace_sampled", args...)
}

// Track starts a new trace linked to t.
func (t *Telemetry) Track(name string) *Trace {
	now := timeutil.Now()
	return &Trace{Name: name, Start: now, lastMark: now, tel: t}
}

// Mark records the elapsed duration since the last mark.
func (tr *Trace) Mark(label string) {
	now := timeutil.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Finish closes the trace. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	t := tr.tel
	if t == nil {
		return
	}
	tr.tel = nil
	total := timeutil.Now().Sub(tr.Start)
	tr.TotalMS = total.Seconds() * 1000

	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}

	slow := t.slow > 0 && total >= t.slow
	t.mu.Lock()
	sampled := t.sampleRate > 0 && t.sample() < t.sampleRate
	t.mu.Unlock()
	if slow || sampled {
		t.sink(tr, slow)
	}
}
