package handler

import (
	"net/http"

	"call-relay/internal/apierrors"
	"call-relay/internal/voicecall/relay"
	"call-relay/internal/voicecall/twilio"

	"github.com/gin-gonic/gin"
)

// HandleIncomingCall answers a Twilio voice webhook with TwiML that connects
// the call to the media stream.
func (h *Handler) HandleIncomingCall(c *gin.Context) {
	doc, err := h.callProcessor.StreamTwiML()
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(doc))
}

// HandleMediaStream upgrades a Twilio Media Streams connection and relays it
// to a new model session until either side hangs up.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}

	r := relay.New(twilio.NewMediaStream(conn), h.dial, h.relayConfig, h.logger, h.metrics)
	unregister, err := h.registry.Register(r)
	if err != nil {
		h.logger.WarnWithError(ctx, "Rejecting media stream", err)
		r.Close()
		return
	}
	defer unregister()

	if err := r.Run(ctx); err != nil {
		h.logger.Error(ctx, "Relay ended with error", err)
	}
}
