package lobby

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

const defaultFacebookBaseUrl = "https://m.facebook.com/"

// LoginFacebook establishes a lobby session by driving the provider's
// mobile login form, then forwarding bridgeToken to the lobby to
// materialize the session. This flow tracks the provider's current
// form markup and will break when it changes, keep it behind the same
// surface as LoginPassword so callers can swap it out.
func (c *Client) LoginFacebook(ctx context.Context, email, password, bridgeToken string) error {
	ctx, span := tracer.Start(ctx, "client:LoginFacebook")
	defer span.End()

	fbUrl := c.facebookBaseUrl
	if fbUrl == "" {
		fbUrl = defaultFacebookBaseUrl
	}

	res, err := c.Http.R().
		SetContext(ctx).
		Get(fbUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch facebook login page")
		return err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "facebook login page rejected request")
		return fmt.Errorf("facebook login page request failed: status %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse facebook login page")
		return err
	}

	form := doc.Find("#login_form")
	if form.Length() == 0 {
		span.SetStatus(codes.Error, "could not find facebook login form")
		return fmt.Errorf("could not find facebook login form")
	}

	fields := map[string]string{}
	form.Find("input[type=hidden]").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		fields[name] = input.AttrOr("value", "")
	})
	fields["email"] = email
	fields["pass"] = password

	action := form.AttrOr("action", "")
	if action == "" {
		span.SetStatus(codes.Error, "facebook login form has no action")
		return fmt.Errorf("facebook login form has no action")
	}
	actionUrl, err := resolveUrl(fbUrl, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve facebook form action")
		return err
	}

	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(fields).
		Post(actionUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit facebook login form")
		return err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "facebook login form submission rejected")
		return fmt.Errorf("%w: facebook form submission status %s", ErrLoginFailed, res.Status())
	}

	// the lobby accepts the provider token through the same /users
	// endpoint the password flow uses
	form2 := map[string]string{"token": bridgeToken}
	for k, v := range loginFormDefaults {
		form2[k] = v
	}
	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(form2).
		Post("/users")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to forward bridge token to lobby")
		return err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return fmt.Errorf("%w: bridge token rejected with status %s", ErrLoginFailed, res.Status())
	}
	return nil
}

func resolveUrl(base, ref string) (string, error) {
	baseUrl, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refUrl, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseUrl.ResolveReference(refUrl).String(), nil
}
