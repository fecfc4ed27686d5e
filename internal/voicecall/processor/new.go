package processor

//go:generate go run go.uber.org/mock/mockgen@latest -source=new.go -destination=mocks_test.go -package=processor

import (
	"call-relay/internal/observability"

	"github.com/go-playground/validator/v10"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallCreator starts outbound calls. The Twilio REST API service implements
// it.
type CallCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// NewTwilioCallCreator returns the Twilio REST calls API for an account.
func NewTwilioCallCreator(accountSid, authToken string) CallCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return client.Api
}

type CallProcessor struct {
	calls    CallCreator
	from     string
	domain   string
	validate *validator.Validate
	logger   *observability.Logger
}

func NewCallProcessor(calls CallCreator, from, domain string, logger *observability.Logger) *CallProcessor {
	return &CallProcessor{
		calls:    calls,
		from:     from,
		domain:   domain,
		validate: validator.New(),
		logger:   logger,
	}
}
