package domain

import "encoding/json"

// Envelope is the unit of push-channel communication, symmetric for send and
// receive: a JSON object {"type": ..., "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message types consumed from the push channel.
const (
	MsgInitialData     = "initial_data"
	MsgAnalysisResult  = "analysis_result"
	MsgNewAnalysis     = "new_analysis"
	MsgAnalyticsUpdate = "analytics_update"
)

// Message types produced on the push channel.
const (
	MsgAnalyzeText  = "analyze_text"
	MsgGetAnalytics = "get_analytics"
)

// AnalyzeTextData is the payload of an outbound analyze_text envelope.
// RequestID correlates the eventual analysis_result with its request; older
// backends ignore the field and simply do not echo it.
type AnalyzeTextData struct {
	Text      string `json:"text"`
	RequestID string `json:"request_id,omitempty"`
}

// NewAnalysisData is the payload broadcast to all clients after an analysis
// was saved by the backend.
type NewAnalysisData struct {
	Sentiment   string  `json:"sentiment"`
	Confidence  float64 `json:"confidence"`
	TextPreview string  `json:"text_preview"`
	Timestamp   string  `json:"timestamp"`
}
