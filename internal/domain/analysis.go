package domain

// Mode distinguishes how an analysis request was triggered.
type Mode string

const (
	// ModeRealtime is continuous, debounced submission driven by ongoing
	// input. Realtime requests may overlap, bounded by the debounce window.
	ModeRealtime Mode = "realtime"

	// ModeManual is an explicit, user-triggered single submission, exclusive
	// with other manual submissions in flight.
	ModeManual Mode = "manual"
)

// AnalysisRequest is created per user action and discarded after result
// delivery or failure. It is never persisted client-side.
type AnalysisRequest struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
}

// AnalysisResult is the boundary contract for a completed analysis,
// identical for push-channel and fallback delivery. A non-empty Error marks
// an application-level failure even when the transport succeeded.
type AnalysisResult struct {
	Sentiment           string             `json:"sentiment"`
	Confidence          float64            `json:"confidence"`
	VaderAnalysis       map[string]any     `json:"vader_analysis,omitempty"`
	TransformerAnalysis map[string]any     `json:"transformer_analysis,omitempty"`
	TextMetrics         *TextMetrics       `json:"text_metrics,omitempty"`
	Emotions            map[string]float64 `json:"emotions,omitempty"`
	ProcessingTime      float64            `json:"processing_time,omitempty"`
	RequestID           string             `json:"request_id,omitempty"`
	Timestamp           string             `json:"timestamp,omitempty"`
	Error               string             `json:"error,omitempty"`
}

// TextMetrics are simple surface statistics of the analyzed text.
type TextMetrics struct {
	WordCount        int     `json:"word_count"`
	SentenceCount    int     `json:"sentence_count"`
	AvgWordLength    float64 `json:"avg_word_length"`
	ExclamationCount int     `json:"exclamation_count"`
	QuestionCount    int     `json:"question_count"`
	CapsRatio        float64 `json:"caps_ratio"`
}

// ReviewSummary is one entry of the recent-reviews listing.
type ReviewSummary struct {
	Text       string             `json:"text"`
	Sentiment  string             `json:"sentiment"`
	Confidence float64            `json:"confidence"`
	Emotions   map[string]float64 `json:"emotions,omitempty"`
	Timestamp  string             `json:"timestamp"`
}

// RecentReviews is the response of GET /api/recent-reviews.
type RecentReviews struct {
	Reviews []ReviewSummary `json:"reviews"`
}

// AnalyticsSummary is the response of GET /api/analytics and the payload of
// initial_data and analytics_update envelopes.
type AnalyticsSummary struct {
	TotalReviews          int                `json:"total_reviews"`
	ReviewsToday          int                `json:"reviews_today"`
	AverageConfidence     float64            `json:"average_confidence"`
	SentimentDistribution map[string]float64 `json:"sentiment_distribution"`
	EmotionAnalysis       map[string]float64 `json:"emotion_analysis"`
	GeneratedAt           string             `json:"generated_at"`
}
