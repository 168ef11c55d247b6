// Package api is the HTTP client for the story service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storysync/internal/story"
)

// Error is a non-2xx response from the story service.
type Error = story.RemoteRejectedError

// Client calls the story service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     story.Logger
}

var _ story.API = (*Client)(nil)

// NewClient constructs a story service client.
func NewClient(baseURL string, timeout time.Duration, logger story.Logger) *Client {
	if logger == nil {
		logger = story.NewNopLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// PushSubscription is a web push subscription registered with the service.
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

type PushKeys struct {
	Auth   string `json:"auth"`
	P256dh string `json:"p256dh"`
}

type loginResponse struct {
	LoginResult struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Token  string `json:"token"`
	} `json:"loginResult"`
}

type listResponse struct {
	ListStory []*story.Story `json:"listStory"`
}

type detailResponse struct {
	Story *story.Story `json:"story"`
}

type addResponse struct {
	Data *struct {
		Story *story.Story `json:"story"`
	} `json:"data"`
	Story *story.Story `json:"story"`
}

func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.LoginResult.Token, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) ListStories(ctx context.Context, token string, withLocation bool) ([]*story.Story, error) {
	path := "/stories"
	if withLocation {
		path += "?location=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	addAuthHeader(req, token)

	var resp listResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.ListStory, nil
}

func (c *Client) GetStory(ctx context.Context, token, id string) (*story.Story, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stories/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	addAuthHeader(req, token)

	var resp detailResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Story, nil
}

// AddStory uploads a story as multipart form data. The service does not
// always echo the created story; a nil story is returned in that case.
func (c *Client) AddStory(ctx context.Context, token string, s story.NewStory) (*story.Story, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("description", s.Description); err != nil {
		return nil, err
	}
	if s.Photo != nil {
		part, err := createPhotoPart(writer, s.Photo)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(s.Photo.Data); err != nil {
			return nil, err
		}
	}
	if s.Lat != nil && s.Lon != nil {
		if err := writer.WriteField("lat", strconv.FormatFloat(*s.Lat, 'f', -1, 64)); err != nil {
			return nil, err
		}
		if err := writer.WriteField("lon", strconv.FormatFloat(*s.Lon, 'f', -1, 64)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stories", body)
	if err != nil {
		return nil, err
	}
	addAuthHeader(req, token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp addResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Data != nil && resp.Data.Story != nil {
		return resp.Data.Story, nil
	}
	return resp.Story, nil
}

// createPhotoPart is multipart.Writer.CreateFormFile with the photo's own
// content type instead of application/octet-stream.
func createPhotoPart(w *multipart.Writer, p *story.Photo) (io.Writer, error) {
	name := p.Name
	if name == "" {
		name = "photo"
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}

func (c *Client) SubscribePush(ctx context.Context, token string, sub PushSubscription) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/notifications/subscribe", sub)
	if err != nil {
		return err
	}
	addAuthHeader(req, token)
	return c.do(req, nil)
}

func (c *Client) UnsubscribePush(ctx context.Context, token, endpoint string) error {
	req, err := c.newJSONRequest(ctx, http.MethodDelete, "/notifications/subscribe", map[string]string{
		"endpoint": endpoint,
	})
	if err != nil {
		return err
	}
	addAuthHeader(req, token)
	return c.do(req, nil)
}

// Ping reports whether the service answers at all. Any HTTP response,
// including an error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", story.ErrRemoteUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return fmt.Errorf("%w: %w", story.ErrRemoteUnreachable, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := strings.TrimSpace(errResp.Message)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
