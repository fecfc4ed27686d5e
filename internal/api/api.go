package api

import (
	voiceCallHandler "call-relay/internal/voicecall/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	router           *gin.RouterGroup
	voiceCallHandler voiceCallHandler.Handler
}

func New(router *gin.RouterGroup, voiceCallHandler voiceCallHandler.Handler) API {
	return API{
		router:           router,
		voiceCallHandler: voiceCallHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.router.GET("/", a.voiceCallHandler.HandleRoot)
	a.router.GET("/health", a.voiceCallHandler.HandleHealth)
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Twilio voice webhook and media stream.
	a.router.GET("/incoming-call", a.voiceCallHandler.HandleIncomingCall)
	a.router.POST("/incoming-call", a.voiceCallHandler.HandleIncomingCall)
	a.router.GET("/media-stream", a.voiceCallHandler.HandleMediaStream)

	apiGroup := a.router.Group("/api")
	{
		apiGroup.POST("/calls", a.voiceCallHandler.HandlePlaceCall)
	}
}
