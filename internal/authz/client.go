// Package authz talks to the action authorization service.
package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gogogo1024/screengate/internal/actionlog"
	"github.com/gogogo1024/screengate/protocol"
)

// Request is the JSON body POSTed for every command.
type Request struct {
	SessionID   string        `json:"session_id"`
	OperatorID  string        `json:"operator_id,omitempty"`
	Sequence    uint64        `json:"sequence"`
	Timestamp   int64         `json:"timestamp"`
	Type        uint8         `json:"type"`
	TypeName    string        `json:"type_name"`
	Action      int8          `json:"action"`
	KeyCode     int32         `json:"keycode"`
	PointerRect protocol.Rect `json:"pointer_rect"`
	DeviceName  string        `json:"device_name"`
	Concurrency bool          `json:"concurrency"`
}

// Response is the decision. Sequence is optional; zero means not echoed.
type Response struct {
	Allowed   *bool  `json:"allowed"`
	Timestamp int64  `json:"timestamp"`
	Sequence  uint64 `json:"sequence,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

var (
	ErrStatus    = errors.New("authz: unexpected status")
	ErrMalformed = errors.New("authz: malformed response")
)

// NewRequest builds the request for a logged record.
func NewRequest(sessionID, operatorID string, r *actionlog.Record, concurrency bool) Request {
	return Request{
		SessionID:   sessionID,
		OperatorID:  operatorID,
		Sequence:    r.Sequence,
		Timestamp:   r.Timestamp,
		Type:        uint8(r.Type),
		TypeName:    r.Type.String(),
		Action:      r.Action,
		KeyCode:     r.KeyCode,
		PointerRect: r.PointerRect,
		DeviceName:  r.DeviceName,
		Concurrency: concurrency,
	}
}

// Permits reports whether resp allows the request it answers. A response
// for another timestamp or sequence never permits.
func (resp Response) Permits(req Request) bool {
	if resp.Allowed == nil || !*resp.Allowed {
		return false
	}
	if resp.Timestamp != req.Timestamp {
		return false
	}
	if resp.Sequence != 0 && resp.Sequence != req.Sequence {
		return false
	}
	return true
}

// Client posts authorization requests to one endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout bounds every request, including body read.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http = &http.Client{Timeout: d, Transport: cl.http.Transport}
		}
	}
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{endpoint: endpoint, http: &http.Client{Timeout: 5 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maxResponseBody caps how much of a response is read.
const maxResponseBody = 64 * 1024

// Authorize sends req and decodes the decision. Transport failures,
// non-2xx statuses and undecodable bodies are errors.
func (c *Client) Authorize(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return Response{}, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Response{}, fmt.Errorf("%w: %d", ErrStatus, httpResp.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Allowed == nil {
		return Response{}, fmt.Errorf("%w: missing allowed flag", ErrMalformed)
	}
	return resp, nil
}
