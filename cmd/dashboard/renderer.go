package main

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pscheid92/reviewpulse/internal/domain"
)

// consoleRenderer is the rendering sink: it prints results, analytics, and
// status changes as plain lines. Duplicate results render idempotently by
// simply printing again.
type consoleRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleRenderer(out io.Writer) *consoleRenderer {
	return &consoleRenderer{out: out}
}

func (r *consoleRenderer) Result(result domain.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "\n%s (confidence %.2f)\n", result.Sentiment, result.Confidence)
	if result.TextMetrics != nil {
		fmt.Fprintf(r.out, "  words=%d sentences=%d exclamations=%d\n",
			result.TextMetrics.WordCount, result.TextMetrics.SentenceCount, result.TextMetrics.ExclamationCount)
	}
	if len(result.Emotions) > 0 {
		fmt.Fprintf(r.out, "  emotions:")
		for _, emotion := range sortedKeys(result.Emotions) {
			if result.Emotions[emotion] > 0 {
				fmt.Fprintf(r.out, " %s=%.2f", emotion, result.Emotions[emotion])
			}
		}
		fmt.Fprintln(r.out)
	}
}

func (r *consoleRenderer) Analytics(summary domain.AnalyticsSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "\nanalytics: %d reviews (%d today), avg confidence %.2f\n",
		summary.TotalReviews, summary.ReviewsToday, summary.AverageConfidence)
	for _, sentiment := range sortedKeys(summary.SentimentDistribution) {
		fmt.Fprintf(r.out, "  %s: %.1f%%\n", sentiment, summary.SentimentDistribution[sentiment])
	}
}

func (r *consoleRenderer) NewAnalysis(analysis domain.NewAnalysisData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "\n[live] %s (%.2f): %s\n", analysis.Sentiment, analysis.Confidence, analysis.TextPreview)
}

func (r *consoleRenderer) Busy(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if busy {
		fmt.Fprintln(r.out, "analyzing...")
	}
}

func (r *consoleRenderer) Failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "analysis failed: %v\n", err)
}

func (r *consoleRenderer) Status(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "[%s]\n", line)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
