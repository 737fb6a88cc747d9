package devserver

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/pscheid92/reviewpulse/internal/domain"
)

// Analyzer is a lexicon-based stand-in for the real sentiment model service.
// It exists so the client is runnable and testable without model inference;
// its output matches the boundary contract shape.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "excellent": {}, "amazing": {}, "wonderful": {},
	"fantastic": {}, "love": {}, "loved": {}, "best": {}, "awesome": {},
	"perfect": {}, "happy": {}, "pleased": {}, "satisfied": {}, "delighted": {},
	"recommend": {}, "nice": {}, "solid": {}, "impressive": {}, "superb": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "awful": {}, "horrible": {}, "worst": {},
	"hate": {}, "hated": {}, "poor": {}, "disappointing": {}, "disappointed": {},
	"broken": {}, "useless": {}, "annoying": {}, "frustrated": {}, "frustrating": {},
	"refund": {}, "waste": {}, "slow": {}, "cheap": {}, "defective": {},
}

var emotionKeywords = map[string][]string{
	"joy":      {"happy", "joy", "excited", "delighted", "pleased", "satisfied", "amazing", "wonderful", "excellent", "fantastic"},
	"anger":    {"angry", "frustrated", "annoyed", "furious", "irritated", "outraged", "terrible", "awful", "horrible", "disgusting"},
	"sadness":  {"sad", "disappointed", "depressed", "upset", "heartbroken", "miserable", "poor", "bad", "worse", "worst"},
	"fear":     {"afraid", "scared", "worried", "anxious", "nervous", "concerned", "uncertain", "doubtful"},
	"surprise": {"surprised", "shocked", "amazed", "astonished", "unexpected", "wow", "incredible"},
	"disgust":  {"disgusted", "revolting", "repulsive", "gross", "nasty", "yuck"},
}

// Analyze scores one text. Empty input produces a result carrying an error,
// mirroring the model service contract.
func (a *Analyzer) Analyze(text string) domain.AnalysisResult {
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		return domain.AnalysisResult{
			Error:     "Empty text provided",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
	}

	words := tokenize(text)

	var positive, negative int
	for _, word := range words {
		if _, ok := positiveWords[word]; ok {
			positive++
		}
		if _, ok := negativeWords[word]; ok {
			negative++
		}
	}

	// VADER-style normalization of the raw score into [-1, 1].
	score := float64(positive - negative)
	compound := score / math.Sqrt(score*score+15)

	sentiment := "neutral"
	switch {
	case compound >= 0.05:
		sentiment = "positive"
	case compound <= -0.05:
		sentiment = "negative"
	}

	total := float64(len(words))
	if total == 0 {
		total = 1
	}

	return domain.AnalysisResult{
		Sentiment:  sentiment,
		Confidence: math.Abs(compound),
		VaderAnalysis: map[string]any{
			"sentiment":  sentiment,
			"confidence": math.Abs(compound),
			"scores": map[string]float64{
				"pos":      float64(positive) / total,
				"neg":      float64(negative) / total,
				"neu":      (total - float64(positive+negative)) / total,
				"compound": compound,
			},
			"method": "lexicon",
		},
		Emotions:       emotionIndicators(text),
		TextMetrics:    textMetrics(text),
		ProcessingTime: time.Since(start).Seconds(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

func emotionIndicators(text string) map[string]float64 {
	lower := strings.ToLower(text)
	emotions := make(map[string]float64, len(emotionKeywords))
	for emotion, keywords := range emotionKeywords {
		hits := 0
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				hits++
			}
		}
		emotions[emotion] = float64(hits) / float64(len(keywords))
	}
	return emotions
}

func textMetrics(text string) *domain.TextMetrics {
	words := strings.Fields(text)

	var letters, upper int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}

	var totalWordLength int
	for _, word := range words {
		totalWordLength += len(word)
	}
	avgWordLength := 0.0
	if len(words) > 0 {
		avgWordLength = float64(totalWordLength) / float64(len(words))
	}

	sentences := 0
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(part) != "" {
			sentences++
		}
	}

	capsRatio := 0.0
	if letters > 0 {
		capsRatio = float64(upper) / float64(letters)
	}

	return &domain.TextMetrics{
		WordCount:        len(words),
		SentenceCount:    sentences,
		AvgWordLength:    avgWordLength,
		ExclamationCount: strings.Count(text, "!"),
		QuestionCount:    strings.Count(text, "?"),
		CapsRatio:        capsRatio,
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
