package processor

import (
	"context"
	"errors"
	"fmt"

	"call-relay/internal/observability"

	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// MediaStreamPath is where Twilio connects the call audio websocket.
const MediaStreamPath = "/media-stream"

var (
	ErrInvalidPhoneNumber = errors.New("phone number must be in E.164 format")
	ErrCallFailed         = errors.New("failed to place call")
)

// StreamURL is the public websocket URL Twilio streams call audio to.
func (p *CallProcessor) StreamURL() string {
	return "wss://" + p.domain + MediaStreamPath
}

// StreamTwiML renders the TwiML that connects a call to the media stream.
func (p *CallProcessor) StreamTwiML() (string, error) {
	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{
			twiml.VoiceStream{Url: p.StreamURL()},
		},
	}
	doc, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		return "", fmt.Errorf("failed to render stream TwiML: %w", err)
	}
	return doc, nil
}

// PlaceCall dials to and connects the answered call to the media stream. It
// returns the new call's SID.
func (p *CallProcessor) PlaceCall(ctx context.Context, to string) (string, error) {
	if err := p.validate.Var(to, "required,e164"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, to)
	}

	doc, err := p.StreamTwiML()
	if err != nil {
		return "", err
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetTwiml(doc)

	call, err := p.calls.CreateCall(params)
	if err != nil {
		p.logger.Error(ctx, "Error making call", err)
		return "", fmt.Errorf("%w: %v", ErrCallFailed, err)
	}

	sid := ""
	if call != nil && call.Sid != nil {
		sid = *call.Sid
	}
	p.logger.Info(observability.WithFields(ctx, observability.Field{Key: "call_sid", Value: sid}), "Call started")
	return sid, nil
}
