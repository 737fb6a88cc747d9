package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/reviewpulse/internal/domain"
)

type analyzeRequest struct {
	Text     string `json:"text"`
	SaveToDB bool   `json:"save_to_db"`
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	result := s.analyzer.Analyze(req.Text)

	if req.SaveToDB && result.Error == "" {
		s.store.Add(req.Text, result)
		s.broadcastNewAnalysis(req.Text, result)
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleRecentReviews(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	return c.JSON(http.StatusOK, s.store.RecentReviews(limit, offset))
}

func (s *Server) handleAnalytics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Analytics())
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":            "healthy",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"active_websockets": s.hub.ClientCount(),
		"total_reviews":     s.store.Count(),
	})
}

var upgrader = websocket.Upgrader{
	// Dev-only server: any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWebsocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed")
	}

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	s.sendEnvelope(conn, domain.MsgInitialData, s.store.Analytics())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return nil
		}
		s.handleClientEnvelope(conn, data)
	}
}

func (s *Server) handleClientEnvelope(conn *websocket.Conn, data []byte) {
	var envelope domain.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Debug("dropping malformed client frame", "error", err)
		return
	}

	switch envelope.Type {
	case domain.MsgAnalyzeText:
		var req domain.AnalyzeTextData
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			s.logger.Debug("dropping malformed analyze_text payload", "error", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			return
		}

		result := s.analyzer.Analyze(req.Text)
		result.RequestID = req.RequestID
		s.sendEnvelope(conn, domain.MsgAnalysisResult, result)

		if result.Error == "" {
			s.store.Add(req.Text, result)
			s.broadcastNewAnalysis(req.Text, result)
		}

	case domain.MsgGetAnalytics:
		s.sendEnvelope(conn, domain.MsgAnalyticsUpdate, s.store.Analytics())

	default:
		s.logger.Debug("ignoring unknown client message", "type", envelope.Type)
	}
}

func (s *Server) sendEnvelope(conn *websocket.Conn, msgType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("marshal envelope data failed", "type", msgType, "error", err)
		return
	}
	raw, err := json.Marshal(domain.Envelope{Type: msgType, Data: payload})
	if err != nil {
		s.logger.Error("marshal envelope failed", "type", msgType, "error", err)
		return
	}
	s.hub.Send(conn, raw)
}

func (s *Server) broadcastNewAnalysis(text string, result domain.AnalysisResult) {
	preview := text
	if runes := []rune(text); len(runes) > 100 {
		preview = string(runes[:100]) + "..."
	}

	data, err := json.Marshal(domain.NewAnalysisData{
		Sentiment:   result.Sentiment,
		Confidence:  result.Confidence,
		TextPreview: preview,
		Timestamp:   result.Timestamp,
	})
	if err != nil {
		s.logger.Error("marshal new analysis failed", "error", err)
		return
	}
	raw, err := json.Marshal(domain.Envelope{Type: domain.MsgNewAnalysis, Data: data})
	if err != nil {
		s.logger.Error("marshal new analysis envelope failed", "error", err)
		return
	}
	s.hub.Broadcast(raw)
}
