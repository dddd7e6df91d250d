// Package callback carries progress of RelMon jobs from the worker back to the service.
//
// Client is used on the worker side; Verifier authenticates callbacks on the service side.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/relmon/pkg/domain"
	xe "github.com/opst/relmon/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL issues access tokens by client credentials grant.
const DefaultTokenURL = "https://auth.cern.ch/auth/realms/cern/api-access/token"

// ErrRejected is returned when the service responds non-2xx status.
var ErrRejected = errors.New("callback: rejected")

// Credentials for client credentials grant.
type Credentials struct {
	ClientId     string
	ClientSecret string

	// Audience is the client id of the service receiving callbacks.
	Audience string

	// TokenURL defaults to DefaultTokenURL.
	TokenURL string
}

type Client struct {
	url         string
	credentials *clientcredentials.Config
	http        *http.Client
	logger      *log.Logger
}

type Option func(*Client) *Client

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) *Client {
		c.logger = logger
		return c
	}
}

// WithCredentials authenticates callbacks by bearer token.
func WithCredentials(cred Credentials) Option {
	return func(c *Client) *Client {
		tokenURL := cred.TokenURL
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		c.credentials = &clientcredentials.Config{
			ClientID:       cred.ClientId,
			ClientSecret:   cred.ClientSecret,
			TokenURL:       tokenURL,
			EndpointParams: url.Values{"audience": {cred.Audience}},
			AuthStyle:      oauth2.AuthStyleInParams,
		}
		return c
	}
}

// WithHTTPClient replaces the client sending requests, including token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) *Client {
		c.http = hc
		return c
	}
}

func New(callbackURL string, options ...Option) *Client {
	discard := log.New("callback")
	discard.SetOutput(io.Discard)
	c := &Client{
		url:    callbackURL,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: discard,
	}
	for _, o := range options {
		c = o(c)
	}
	return c
}

func (c *Client) client(ctx context.Context) *http.Client {
	if c.credentials == nil {
		return c.http
	}
	return c.credentials.Client(context.WithValue(ctx, oauth2.HTTPClient, c.http))
}

// Notify posts relmon as it is.
func (c *Client) Notify(ctx context.Context, relmon domain.RelMon) error {
	payload, err := json.Marshal(relmon)
	if err != nil {
		return xe.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return xe.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Infof("notifying %s: status %s", relmon, relmon.Status)
	resp, err := c.client(ctx).Do(req)
	if err != nil {
		return xe.WrapWithNote(c.url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, body)
	}
	c.logger.Infof("notification result: %s", body)
	return nil
}
