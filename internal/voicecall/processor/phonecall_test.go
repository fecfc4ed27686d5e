package processor

import (
	"context"
	"errors"
	"testing"

	"call-relay/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/mock/gomock"
)

const (
	testFrom   = "+15550001111"
	testDomain = "relay.example.com"
)

func TestStreamTwiML(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewCallProcessor(NewMockCallCreator(ctrl), testFrom, testDomain, observability.NewNopLogger())

	assert.Equal(t, "wss://relay.example.com/media-stream", p.StreamURL())

	doc, err := p.StreamTwiML()
	require.NoError(t, err)
	assert.Contains(t, doc, "<Response>")
	assert.Contains(t, doc, "<Connect>")
	assert.Contains(t, doc, `url="wss://relay.example.com/media-stream"`)
	assert.NotContains(t, doc, "<Say")
}

func TestPlaceCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	calls := NewMockCallCreator(ctrl)
	p := NewCallProcessor(calls, testFrom, testDomain, observability.NewNopLogger())

	sid := "CA123"
	calls.EXPECT().CreateCall(gomock.Any()).
		DoAndReturn(func(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
			require.NotNil(t, params.To)
			assert.Equal(t, "+18885551212", *params.To)
			assert.Equal(t, testFrom, *params.From)
			assert.Contains(t, *params.Twiml, "wss://relay.example.com/media-stream")
			return &api.ApiV2010Call{Sid: &sid}, nil
		})

	got, err := p.PlaceCall(context.Background(), "+18885551212")
	require.NoError(t, err)
	assert.Equal(t, "CA123", got)
}

func TestPlaceCallRejectsInvalidNumbers(t *testing.T) {
	for _, to := range []string{"", "8885551212", "+1 888 555 1212", "call-me"} {
		t.Run(to, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// No CreateCall expectation: an invalid number must not reach Twilio.
			p := NewCallProcessor(NewMockCallCreator(ctrl), testFrom, testDomain, observability.NewNopLogger())

			_, err := p.PlaceCall(context.Background(), to)
			assert.ErrorIs(t, err, ErrInvalidPhoneNumber)
		})
	}
}

func TestPlaceCallTwilioFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	calls := NewMockCallCreator(ctrl)
	p := NewCallProcessor(calls, testFrom, testDomain, observability.NewNopLogger())

	calls.EXPECT().CreateCall(gomock.Any()).Return(nil, errors.New("unauthorized"))

	_, err := p.PlaceCall(context.Background(), "+18885551212")
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestPlaceCallWithoutSid(t *testing.T) {
	ctrl := gomock.NewController(t)
	calls := NewMockCallCreator(ctrl)
	p := NewCallProcessor(calls, testFrom, testDomain, observability.NewNopLogger())

	calls.EXPECT().CreateCall(gomock.Any()).Return(&api.ApiV2010Call{}, nil)

	sid, err := p.PlaceCall(context.Background(), "+18885551212")
	require.NoError(t, err)
	assert.Empty(t, sid)
}
