package profiler

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Profiler collects durations of named moderation steps. The zero value is
// not usable; a nil *Profiler records nothing.
type Profiler struct {
	mu      sync.Mutex
	samples map[string][]time.Duration
}

// New creates an empty profiler
func New() *Profiler {
	return &Profiler{samples: make(map[string][]time.Duration)}
}

// Start begins timing step and returns the function that records it
func (p *Profiler) Start(step string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		p.Record(step, d)
		return d
	}
}

// Record adds one duration for step
func (p *Profiler) Record(step string, d time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.samples[step] = append(p.samples[step], d)
	p.mu.Unlock()
}

// Stats summarizes the durations of one step
type Stats struct {
	Step   string        `json:"step"`
	Count  int           `json:"count"`
	Total  time.Duration `json:"total"`
	Mean   time.Duration `json:"mean"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Median time.Duration `json:"median"`
	P95    time.Duration `json:"p95"`
}

// Stats returns the summary of step. Count is 0 for an unknown step.
func (p *Profiler) Stats(step string) Stats {
	if p == nil {
		return Stats{Step: step}
	}
	p.mu.Lock()
	sorted := append([]time.Duration(nil), p.samples[step]...)
	p.mu.Unlock()

	return summarize(step, sorted)
}

// Snapshot returns the summaries of every step ordered by name
func (p *Profiler) Snapshot() []Stats {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	steps := make([]string, 0, len(p.samples))
	for step := range p.samples {
		steps = append(steps, step)
	}
	p.mu.Unlock()

	sort.Strings(steps)
	out := make([]Stats, 0, len(steps))
	for _, step := range steps {
		out = append(out, p.Stats(step))
	}
	return out
}

// Reset drops every recorded duration
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.samples = make(map[string][]time.Duration)
	p.mu.Unlock()
}

// WriteReport prints a timing table
func (p *Profiler) WriteReport(w io.Writer) {
	stats := p.Snapshot()
	if len(stats) == 0 {
		fmt.Fprintln(w, "No timing data available")
		return
	}

	fmt.Fprintf(w, "⏱️  Performance Profile Report\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "%-16s %8s %10s %9s %9s %9s %9s\n", "Step", "Count", "Total", "Mean", "Median", "P95", "Max")
	fmt.Fprintf(w, "───────────────────────────────────────────────────────────────\n")
	for _, s := range stats {
		fmt.Fprintf(w, "%-16s %8d %10s %9s %9s %9s %9s\n",
			s.Step, s.Count,
			formatDuration(s.Total),
			formatDuration(s.Mean),
			formatDuration(s.Median),
			formatDuration(s.P95),
			formatDuration(s.Max),
		)
	}
}

func summarize(step string, d []time.Duration) Stats {
	if len(d) == 0 {
		return Stats{Step: step}
	}
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })

	var total time.Duration
	for _, v := range d {
		total += v
	}
	return Stats{
		Step:   step,
		Count:  len(d),
		Total:  total,
		Mean:   total / time.Duration(len(d)),
		Min:    d[0],
		Max:    d[len(d)-1],
		Median: d[len(d)/2],
		P95:    d[(len(d)*95)/100],
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}
