package sms

import (
	"context"
	"fmt"
	"time"

	"ogwatch/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("ogwatch.lib.sms")

// Sender delivers one text message. The watcher only ever depends on
// this surface so providers can be swapped or stubbed.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

const defaultTwilioBaseUrl = "https://api.twilio.com"

type TwilioOptions struct {
	AccountSid string
	AuthToken  string
	FromNumber string
	// defaults to the public twilio api
	BaseUrl string
}

type TwilioSender struct {
	httpc      *resty.Client
	accountSid string
	fromNumber string
}

func NewTwilioSender(opts TwilioOptions) TwilioSender {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = defaultTwilioBaseUrl
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetBasicAuth(opts.AccountSid, opts.AuthToken)
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "ogwatch.lib.sms.http")

	return TwilioSender{
		httpc:      client,
		accountSid: opts.AccountSid,
		fromNumber: opts.FromNumber,
	}
}

func (s TwilioSender) Send(ctx context.Context, to, body string) error {
	ctx, span := tracer.Start(ctx, "TwilioSender:Send")
	defer span.End()

	res, err := s.httpc.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": s.fromNumber,
			"To":   to,
			"Body": body,
		}).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", s.accountSid))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send sms")
		return err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "sms send rejected")
		return fmt.Errorf("sms send failed: status %s", res.Status())
	}
	return nil
}
