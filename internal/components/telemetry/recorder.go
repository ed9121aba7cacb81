package telemetry

import "sync"

type Report struct {
	Kind   string
	ID     string
	Params []any
}

// Recorder keeps every report in memory, it is meant for tests that want
// to assert a warning was (or was not) raised.
type Recorder struct {
	mu      sync.Mutex
	Reports []Report
}

func (r *Recorder) add(kind, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reports = append(r.Reports, Report{Kind: kind, ID: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any)  { r.add("broken", id, params) }
func (r *Recorder) ReportWarning(id string, params ...any) { r.add("warning", id, params) }
func (r *Recorder) ReportDebug(msg string, params ...any)  { r.add("debug", msg, params) }
func (r *Recorder) ReportCount(id string, count int64)     { r.add("count", id, []any{count}) }

// Count returns how many reports of the given kind were made under id.
func (r *Recorder) Count(kind, id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.Reports {
		if rep.Kind == kind && rep.ID == id {
			n++
		}
	}
	return n
}

// Kinds returns how many reports of the given kind were made under any id.
func (r *Recorder) Kinds(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.Reports {
		if rep.Kind == kind {
			n++
		}
	}
	return n
}
