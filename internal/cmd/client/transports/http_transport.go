package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPTransport talks to the Pulse HTTP gateway with a bearer token.
type HTTPTransport struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPTransport returns a transport using http.DefaultClient.
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, Client: http.DefaultClient}
}

func (t *HTTPTransport) do(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}
	return t.Client.Do(req)
}

// statusError turns a non-2xx response into an error carrying its body.
func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(b))
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		return fmt.Errorf("%s: %s (retry after %ss)", resp.Status, msg, ra)
	}
	return fmt.Errorf("%s: %s", resp.Status, msg)
}

// Invalidate posts a mutation hook.
func (t *HTTPTransport) Invalidate(ctx context.Context, inv Invalidation) error {
	b, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/v1/invalidate", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Subscribe opens the SSE stream and calls onFrame for every frame,
// including ready and ping. Event frames are named after their topic. It returns when ctx ends, the server closes the
// stream, the limit is reached, or onFrame fails.
func (t *HTTPTransport) Subscribe(ctx context.Context, sreq SubscribeRequest, onFrame func(Frame) error) error {
	q := url.Values{}
	if sreq.OrganizationID != "" {
		q.Set("organizationId", sreq.OrganizationID)
	}
	if sreq.Filter != "" {
		q.Set("filter", sreq.Filter)
	}
	u := t.BaseURL + "/v1/realtime"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := t.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	seen := 0
	var cur Frame
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.Data = append(cur.Data, strings.TrimPrefix(line, "data:")...)
		case line == "":
			if cur.Event == "" && len(cur.Data) == 0 {
				continue
			}
			if err := onFrame(cur); err != nil {
				return err
			}
			if cur.Event != "ready" && cur.Event != "ping" {
				seen++
				if sreq.Limit > 0 && seen >= sreq.Limit {
					return nil
				}
			}
			cur = Frame{}
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Status reads the broker mode.
func (t *HTTPTransport) Status(ctx context.Context) (Status, error) {
	var st Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/v1/realtime/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := t.do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, statusError(resp)
	}
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, err
}
