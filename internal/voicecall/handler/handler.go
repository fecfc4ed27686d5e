package handler

import (
	"net/http"

	"call-relay/internal/observability"
	"call-relay/internal/voicecall/processor"
	"call-relay/internal/voicecall/relay"

	"github.com/gorilla/websocket"
)

type Handler struct {
	callProcessor *processor.CallProcessor
	dial          relay.DialFunc
	relayConfig   relay.Config
	registry      *relay.Registry
	metrics       *observability.Metrics
	logger        *observability.Logger
}

func New(
	callProcessor *processor.CallProcessor,
	dial relay.DialFunc,
	relayConfig relay.Config,
	registry *relay.Registry,
	metrics *observability.Metrics,
	logger *observability.Logger,
) Handler {
	return Handler{
		callProcessor: callProcessor,
		dial:          dial,
		relayConfig:   relayConfig,
		registry:      registry,
		metrics:       metrics,
		logger:        logger,
	}
}

// Twilio does not send an Origin header on media stream upgrades.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}
