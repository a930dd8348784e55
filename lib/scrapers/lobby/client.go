package lobby

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"ogwatch/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("ogwatch.lib.scrapers.lobby")

const (
	DefaultBaseUrl = "https://lobby-api.ogame.gameforge.com"

	// the lobby rejects requests without a browser-looking agent
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13_1)"
)

var (
	ErrLoginFailed      = fmt.Errorf("failed to login to the lobby")
	ErrLobbyUnavailable = fmt.Errorf("could not access the lobby account list")
)

// form fields the lobby expects on every login request
var loginFormDefaults = map[string]string{
	"autologin": "false",
	"language":  "en",
	"kid":       "",
}

// Client is a cookie-bearing session against the game lobby. It is
// owned by a single user's processing pass and must not be shared.
type Client struct {
	Http            *resty.Client
	facebookBaseUrl string
}

type ClientOptions struct {
	// defaults to DefaultBaseUrl
	BaseUrl string
	// defaults to the public facebook mobile page
	FacebookBaseUrl string
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", UserAgent)
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "ogwatch.lib.scrapers.lobby.http")

	return &Client{
		Http:            client,
		facebookBaseUrl: opts.FacebookBaseUrl,
	}, nil
}

// LoginPassword establishes a lobby session from email/password
// credentials. A rejected login is ErrLoginFailed; the caller decides
// how far the failure reaches.
func (c *Client) LoginPassword(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "client:LoginPassword")
	defer span.End()

	form := map[string]string{
		"credentials[email]":    email,
		"credentials[password]": password,
	}
	for k, v := range loginFormDefaults {
		form[k] = v
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post("/users")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return fmt.Errorf("%w: status %s", ErrLoginFailed, res.Status())
	}
	return nil
}

type Server struct {
	Number   int    `json:"number"`
	Language string `json:"language"`
}

type Account struct {
	Id     int    `json:"id"`
	Name   string `json:"name"`
	Server Server `json:"server"`
}

// Accounts enumerates the game accounts reachable from the current
// session, in the order the lobby reports them. An unreachable account
// list is ErrLobbyUnavailable, which is recoverable: the user simply
// has nothing to check this cycle.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	ctx, span := tracer.Start(ctx, "client:Accounts")
	defer span.End()

	var accounts []Account
	res, err := c.Http.R().
		SetContext(ctx).
		SetResult(&accounts).
		Get("/users/me/accounts")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch account list")
		return nil, err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, ErrLobbyUnavailable.Error())
		return nil, fmt.Errorf("%w: status %s", ErrLobbyUnavailable, res.Status())
	}
	return accounts, nil
}

// LoginLink exchanges the session and an account identity for a
// one-time game session url. The url is single-use and time-limited,
// fetch it right before use.
func (c *Client) LoginLink(ctx context.Context, account Account) (string, error) {
	ctx, span := tracer.Start(ctx, "client:LoginLink")
	defer span.End()

	var link struct {
		Url string `json:"url"`
	}
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"id":               fmt.Sprint(account.Id),
			"server[number]":   fmt.Sprint(account.Server.Number),
			"server[language]": account.Server.Language,
		}).
		SetResult(&link).
		Get("/users/me/loginLink")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login link")
		return "", err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "login link request rejected")
		return "", fmt.Errorf("login link request failed: status %s", res.Status())
	}
	if link.Url == "" {
		span.SetStatus(codes.Error, "login link response missing url")
		return "", fmt.Errorf("login link response missing url")
	}
	return link.Url, nil
}
