package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"peerlink/pkg/types"
)

const clientRequestTimeout = 10 * time.Second

// Client talks to the signaling REST API. It backs the RelaySignaler
// and is usable on its own for session bootstrap.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: clientRequestTimeout},
	}
}

func (c *Client) CreateSession(ctx context.Context, clientID string) (*types.SessionResponse, error) {
	var resp types.SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/p2p/sessions",
		types.CreateSessionRequest{ClientID: clientID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) JoinSession(ctx context.Context, sessionID, clientID string) (*types.SessionResponse, error) {
	var resp types.SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/p2p/sessions/"+url.PathEscape(sessionID)+"/join",
		types.JoinSessionRequest{ClientID: clientID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) PostSignal(ctx context.Context, sessionID, token string, signalType types.SignalType, payload json.RawMessage) error {
	var resp types.PostSignalResponse
	return c.do(ctx, http.MethodPost, "/api/p2p/sessions/"+url.PathEscape(sessionID)+"/signals",
		types.PostSignalRequest{Token: token, Type: signalType, Payload: payload}, &resp)
}

func (c *Client) ListSignals(ctx context.Context, sessionID, token, cursor string, limit int) ([]types.SignalRecord, string, error) {
	path := "/api/p2p/sessions/" + url.PathEscape(sessionID) + "/signals" +
		"?token=" + url.QueryEscape(token) + "&limit=" + strconv.Itoa(limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}
	var resp types.ListSignalsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Signals, resp.NextCursor, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// statusError maps HTTP failures back onto the shared error taxonomy so
// callers can branch on the sentinels without parsing bodies.
func statusError(resp *http.Response) error {
	var body types.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = types.ErrSessionNotFound
	case http.StatusForbidden:
		sentinel = types.ErrUnauthorized
	case http.StatusConflict:
		switch {
		case strings.Contains(msg, "retry"):
			sentinel = types.ErrJoinRace
		case strings.Contains(msg, "closed"):
			sentinel = types.ErrSessionClosed
		default:
			sentinel = types.ErrAlreadyJoined
		}
	case http.StatusBadRequest:
		sentinel = types.ErrValidation
	default:
		sentinel = errors.New("server error")
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
