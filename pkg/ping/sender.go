package ping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// ErrDelivery wraps every send failure: transport errors, timeouts and
// answers other than 200.
var ErrDelivery = errors.New("heartbeat delivery failed")

// Sender delivers one signal to the ingestion endpoint.
type Sender interface {
	Send(ctx context.Context, signal heartbeat.Signal) error
}

// Version is reported in the User-Agent of HTTPSender.
var Version = "dev"

// HTTPSender issues the signal as a single GET request with the query
// parameters a, d, e and v.
type HTTPSender struct {
	endpoint  *url.URL
	client    *http.Client
	userAgent string
}

// NewHTTPSender validates endpoint (for example "https://t.example.com/p").
// A nil client gets a default one with a 10 second timeout.
func NewHTTPSender(endpoint string, client *http.Client) (*HTTPSender, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &HTTPSender{
		endpoint:  u,
		client:    client,
		userAgent: "heartbeat-go/" + Version,
	}, nil
}

// URL renders the request URL for signal.
func (s *HTTPSender) URL(signal heartbeat.Signal) string {
	u := *s.endpoint
	q := u.Query()
	q.Set("a", signal.AppID)
	q.Set("d", string(signal.DeviceHash))
	q.Set("e", string(signal.Environment))
	if signal.AppVersion != "" {
		q.Set("v", signal.AppVersion)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Send performs the request. Only 200 OK counts as acknowledged.
func (s *HTTPSender) Send(ctx context.Context, signal heartbeat.Signal) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(signal), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d after %v", ErrDelivery, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
	return nil
}
