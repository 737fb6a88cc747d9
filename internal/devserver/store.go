package devserver

import (
	"sync"
	"time"

	"github.com/pscheid92/reviewpulse/internal/domain"
)

const defaultMaxReviews = 1000

type storedReview struct {
	text       string
	sentiment  string
	confidence float64
	emotions   map[string]float64
	createdAt  time.Time
}

// Store keeps a bounded in-memory log of analyzed reviews and aggregates
// them into the analytics summary. It is a development convenience, not
// persistence.
type Store struct {
	mu         sync.Mutex
	reviews    []storedReview
	maxReviews int
	now        func() time.Time
}

func NewStore(maxReviews int) *Store {
	if maxReviews <= 0 {
		maxReviews = defaultMaxReviews
	}
	return &Store{
		maxReviews: maxReviews,
		now:        time.Now,
	}
}

// Add records one analyzed review, evicting the oldest entry when full.
func (s *Store) Add(text string, result domain.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reviews = append(s.reviews, storedReview{
		text:       text,
		sentiment:  result.Sentiment,
		confidence: result.Confidence,
		emotions:   result.Emotions,
		createdAt:  s.now(),
	})
	if len(s.reviews) > s.maxReviews {
		s.reviews = s.reviews[len(s.reviews)-s.maxReviews:]
	}
}

// RecentReviews returns reviews newest-first.
func (s *Store) RecentReviews(limit, offset int) domain.RecentReviews {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	result := domain.RecentReviews{Reviews: []domain.ReviewSummary{}}
	for i := len(s.reviews) - 1 - offset; i >= 0 && len(result.Reviews) < limit; i-- {
		review := s.reviews[i]
		result.Reviews = append(result.Reviews, domain.ReviewSummary{
			Text:       review.text,
			Sentiment:  review.sentiment,
			Confidence: review.confidence,
			Emotions:   review.emotions,
			Timestamp:  review.createdAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}

// Analytics aggregates the stored reviews.
func (s *Store) Analytics() domain.AnalyticsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	summary := domain.AnalyticsSummary{
		TotalReviews:          len(s.reviews),
		SentimentDistribution: map[string]float64{},
		EmotionAnalysis:       map[string]float64{},
		GeneratedAt:           now.UTC().Format(time.RFC3339),
	}

	if len(s.reviews) == 0 {
		return summary
	}

	counts := map[string]int{}
	emotionTotals := map[string]float64{}
	var confidenceSum float64

	for _, review := range s.reviews {
		counts[review.sentiment]++
		confidenceSum += review.confidence
		if !review.createdAt.Before(today) {
			summary.ReviewsToday++
		}
		for emotion, value := range review.emotions {
			emotionTotals[emotion] += value
		}
	}

	total := float64(len(s.reviews))
	summary.AverageConfidence = confidenceSum / total
	for sentiment, count := range counts {
		summary.SentimentDistribution[sentiment] = 100 * float64(count) / total
	}
	for emotion, sum := range emotionTotals {
		summary.EmotionAnalysis[emotion] = sum / total
	}

	return summary
}

// Count returns the number of stored reviews.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reviews)
}
