package handler

import (
	"net/http"

	"call-relay/internal/apierrors"

	"github.com/gin-gonic/gin"
)

type PlaceCallRequest struct {
	To string `json:"to" binding:"required,e164"`
}

type PlaceCallResponse struct {
	CallSID string `json:"call_sid"`
}

// HandlePlaceCall starts an outbound call that streams into a relay once
// answered.
func (h *Handler) HandlePlaceCall(c *gin.Context) {
	var req PlaceCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	sid, err := h.callProcessor.PlaceCall(c.Request.Context(), req.To)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, PlaceCallResponse{CallSID: sid})
}

func (h *Handler) HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Twilio Media Stream Server is running"})
}

func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"active_sessions": h.registry.Count(),
	})
}
