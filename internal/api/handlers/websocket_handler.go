package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/internal/language"
	"github.com/acharya-agent/backend/internal/query"
	"github.com/acharya-agent/backend/pkg/logger"
	"github.com/acharya-agent/backend/pkg/utils"
)

const voiceQueryTimeout = 60 * time.Second

// VoiceHandler bridges an external speech front end. The client sends
// recognised utterances and receives render-ready text sentence by sentence,
// followed by the full response. Each connection keeps its own session.
type VoiceHandler struct {
	engine Asker
}

func NewVoiceHandler(engine Asker) *VoiceHandler {
	return &VoiceHandler{
		engine: engine,
	}
}

type voiceReply map[string]interface{}

type voiceMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (h *VoiceHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Voice connection established")

	defer func() {
		c.Close()
		logger.Info("Voice connection closed")
	}()

	var session language.Session
	for {
		var msg voiceMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read voice message", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "reset":
			session = language.Session{}
			if err := c.WriteJSON(voiceReply{"type": "session", "session": session}); err != nil {
				return
			}
		case "utterance":
			next, err := h.answer(c, msg.Text, session)
			if err != nil {
				logger.Warn("Failed to answer voice utterance", zap.Error(err))
				if h.sendError(c, err) != nil {
					return
				}
				continue
			}
			session = next
		default:
			if h.sendError(c, errors.New("unknown message type")) != nil {
				return
			}
		}
	}
}

func (h *VoiceHandler) answer(c *websocket.Conn, text string, session language.Session) (language.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), voiceQueryTimeout)
	defer cancel()

	response, err := h.engine.ProcessQuery(ctx, query.QueryRequest{
		Utterance: text,
		Session:   session,
	})
	if err != nil {
		return session, err
	}

	for _, sentence := range utils.SplitSentences(response.Answer) {
		err := c.WriteJSON(voiceReply{
			"type":     "sentence",
			"text":     sentence,
			"language": response.Language,
		})
		if err != nil {
			return response.Session, err
		}
	}

	err = c.WriteJSON(voiceReply{
		"type":     "complete",
		"response": response,
	})
	return response.Session, err
}

func (h *VoiceHandler) sendError(c *websocket.Conn, err error) error {
	msg := "Failed to process utterance"
	if errors.Is(err, query.ErrEmptyUtterance) {
		msg = "Utterance is empty"
	}
	return c.WriteJSON(voiceReply{
		"type":  "error",
		"error": msg,
	})
}
