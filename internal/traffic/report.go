package traffic

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// Report aggregates the results of one run
type Report struct {
	Results         []Result
	ByStatus        map[int]int
	ByFinishReason  map[string]int
	TransportErrors int
	// HighTokenResults counts answers whose response tokens exceed the
	// configured threshold.
	HighTokenResults int
	Threshold        int
	Duration         time.Duration
}

func newReport(results []Result, threshold int, duration time.Duration) *Report {
	r := &Report{
		Results:        results,
		ByStatus:       make(map[int]int),
		ByFinishReason: make(map[string]int),
		Threshold:      threshold,
		Duration:       duration,
	}

	for _, res := range results {
		if res.Err != nil {
			r.TransportErrors++
			continue
		}
		r.ByStatus[res.StatusCode]++
		if res.Answer != nil {
			r.ByFinishReason[res.Answer.FinishReason]++
			if res.Answer.ResponseTokens > threshold {
				r.HighTokenResults++
			}
		}
	}
	return r
}

// Succeeded returns the number of 2xx responses
func (r *Report) Succeeded() int {
	n := 0
	for status, count := range r.ByStatus {
		if status >= 200 && status < 300 {
			n += count
		}
	}
	return n
}

// WriteSummary prints a human-readable summary of the run
func (r *Report) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "requests: %d in %s\n", len(r.Results), r.Duration.Round(time.Millisecond))

	fmt.Fprintln(w, "status codes:")
	for _, status := range slices.Sorted(maps.Keys(r.ByStatus)) {
		fmt.Fprintf(w, "  %d: %d\n", status, r.ByStatus[status])
	}
	if r.TransportErrors > 0 {
		fmt.Fprintf(w, "  transport errors: %d\n", r.TransportErrors)
	}

	fmt.Fprintln(w, "finish reasons:")
	for _, reason := range slices.Sorted(maps.Keys(r.ByFinishReason)) {
		fmt.Fprintf(w, "  %s: %d\n", reason, r.ByFinishReason[reason])
	}

	fmt.Fprintf(w, "responses over %d tokens: %d\n", r.Threshold, r.HighTokenResults)
}
