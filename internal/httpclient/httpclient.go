// Package httpclient builds the resty clients used for every outbound call.
package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout   = 8 * time.Second
	defaultUserAgent = "leadcapture/1.0"
)

// Config controls a client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retries applies resty's own retry loop. Use it only for idempotent calls.
	Retries    int
	RetryWait  time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// New returns a resty client with a bounded timeout.
func New(cfg Config) *resty.Client {
	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	client.
		SetTimeout(timeout).
		SetHeader("User-Agent", ua).
		SetHeader("Accept", "application/json")
	if cfg.BaseURL != "" {
		client.SetBaseURL(cfg.BaseURL)
	}
	if cfg.Retries > 0 {
		wait := cfg.RetryWait
		if wait <= 0 {
			wait = 200 * time.Millisecond
		}
		client.
			SetRetryCount(cfg.Retries).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(4 * wait).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || Retryable(resp.StatusCode())
			})
	}
	return client
}

// Retryable reports whether a status code is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// StatusLabel renders the outcome of a call for metrics and logs.
func StatusLabel(resp *resty.Response, err error) string {
	if err != nil {
		return "error"
	}
	if resp == nil {
		return "none"
	}
	return strconv.Itoa(resp.StatusCode()/100) + "xx"
}
