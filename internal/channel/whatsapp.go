// Package channel renders the messaging-channel boundary: a Twilio-style
// WhatsApp webhook in, TwiML out.
package channel

import (
	"context"
	"encoding/xml"
	"net/http"

	"github.com/pampalabs/gabriela/internal/logger"
)

// Processor handles one inbound message and produces the reply text.
type Processor interface {
	Process(ctx context.Context, sender, text, imageURL string) (string, error)
}

const fallbackReply = "Lo siento, ocurrió un error. ¿Podés intentar de nuevo?"
const emptyReply = "No entiendo tu mensaje. ¿Puedes repetirlo?"

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// WhatsAppHandler serves the Twilio webhook. Agent failures never surface as
// HTTP errors; the sender always gets a rendered reply.
type WhatsAppHandler struct {
	agent Processor
}

// NewWhatsAppHandler creates the webhook handler.
func NewWhatsAppHandler(agent Processor) *WhatsAppHandler {
	return &WhatsAppHandler{agent: agent}
}

func (h *WhatsAppHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		logger.L.Warn("webhook form parse failed", "error", err)
		writeTwiML(w, fallbackReply)
		return
	}

	sender := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	imageURL := r.PostFormValue("MediaUrl0")

	if sender == "" {
		logger.L.Warn("webhook request without sender")
		writeTwiML(w, fallbackReply)
		return
	}
	if body == "" && imageURL == "" {
		writeTwiML(w, emptyReply)
		return
	}

	logger.L.Info("inbound message", "sender", sender, "hasImage", imageURL != "")

	reply, err := h.agent.Process(r.Context(), sender, body, imageURL)
	if err != nil {
		logger.L.Error("process failed", "sender", sender, "error", err)
		writeTwiML(w, fallbackReply)
		return
	}
	writeTwiML(w, reply)
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(twimlResponse{Message: message}); err != nil {
		logger.L.Error("twiml encode failed", "error", err)
	}
}
