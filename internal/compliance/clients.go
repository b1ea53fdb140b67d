package compliance

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// ModerationClient posts the lead summary to a content moderation endpoint.
type ModerationClient struct {
	http *resty.Client
	url  string
	key  string
}

func NewModerationClient(client *resty.Client, url, key string) *ModerationClient {
	return &ModerationClient{http: client, url: url, key: key}
}

// IsJunk reports whether the moderation response flagged any terms.
func (c *ModerationClient) IsJunk(ctx context.Context, text string) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetHeader("Ocp-Apim-Subscription-Key", c.key).
		SetBody(text).
		Post(c.url)
	if err != nil {
		return false, err
	}
	if !resp.IsSuccess() {
		return false, statusError(resp)
	}
	fields, err := decodeObject(resp.Body())
	if err != nil {
		return false, fmt.Errorf("decode moderation response: %w", err)
	}
	return !looselyEmpty(fields["Terms"]), nil
}

// DNCClient checks an email and phone against a do-not-call registry.
type DNCClient struct {
	http *resty.Client
	url  string
}

func NewDNCClient(client *resty.Client, url string) *DNCClient {
	return &DNCClient{http: client, url: url}
}

// Listed reports a truthy status in the registry response.
func (c *DNCClient) Listed(ctx context.Context, email, phone string) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"email":     email,
			"ph_number": phone,
		}).
		Post(c.url)
	if err != nil {
		return false, err
	}
	if !resp.IsSuccess() {
		return false, statusError(resp)
	}
	fields, err := decodeObject(resp.Body())
	if err != nil {
		return false, fmt.Errorf("decode dnc response: %w", err)
	}
	return !looselyEmpty(fields["status"]), nil
}

// IPEchoClient resolves the public address of this service.
type IPEchoClient struct {
	http *resty.Client
	url  string
}

func NewIPEchoClient(client *resty.Client, url string) *IPEchoClient {
	return &IPEchoClient{http: client, url: url}
}

func (c *IPEchoClient) PublicIP(ctx context.Context) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.url)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", statusError(resp)
	}
	var out struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode ip echo response: %w", err)
	}
	if out.IP == "" {
		return "", errors.New("ip echo response had no ip")
	}
	return out.IP, nil
}

// FrequencyClient forwards cleared summaries to the CRM frequency endpoint.
type FrequencyClient struct {
	http *resty.Client
	url  string
	auth string
}

// NewFrequencyClient takes auth as the raw "user:pass" credential.
func NewFrequencyClient(client *resty.Client, url, auth string) *FrequencyClient {
	return &FrequencyClient{http: client, url: url, auth: auth}
}

func (c *FrequencyClient) Forward(ctx context.Context, summary Summary) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", BasicAuth(c.auth)).
		SetBody(summary).
		Post(c.url)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}
	return nil
}

// BasicAuth renders a Basic authorization header from a "user:pass" string.
func BasicAuth(credentials string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

func statusError(resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 256 {
		body = body[:256]
	}
	return &StatusError{Code: resp.StatusCode(), Body: body}
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// looselyEmpty treats null, false, 0, "", "0", [] and {} as empty, the way
// the upstream services encode "nothing found".
func looselyEmpty(raw json.RawMessage) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return true
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return true
	}
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case string:
		return val == "" || val == "0"
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
