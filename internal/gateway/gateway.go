// Package gateway is the HTTP client for the Q&A REST backend.
// It does not retry and does not cache; every call is one request.
package gateway

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/qna"
)

// RequestIDHeader carries a per-request ULID for correlating backend logs.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client (tests use httptest's).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for cfg.BaseURL with cfg's timeout.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListQnas returns the questions matching f. Unset filter fields are omitted.
func (c *Client) ListQnas(ctx context.Context, f qna.Filter) ([]qna.Qna, error) {
	var out []qna.Qna
	if err := c.doJSON(ctx, http.MethodGet, "/qnas/", f.Query(), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []qna.Qna{}
	}
	return out, nil
}

// CreateQna posts a new question. The returned Qna is nil when the backend
// answers without a body.
func (c *Client) CreateQna(ctx context.Context, in qna.QnaInput) (*qna.Qna, error) {
	return c.writeQna(ctx, http.MethodPost, "/qnas/", in)
}

// UpdateQna replaces question id with body (a qna.QnaInput or a full qna.Qna).
func (c *Client) UpdateQna(ctx context.Context, id int64, body any) (*qna.Qna, error) {
	if id <= 0 {
		return nil, errors.NewInvalidRequest("update requires a saved question (id > 0)")
	}
	return c.writeQna(ctx, http.MethodPut, qnaPath(id), body)
}

// DeleteQna deletes question id.
func (c *Client) DeleteQna(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, qnaPath(id), nil, nil, nil)
}

// ToggleBookmark asks the backend to flip the bookmark flag. No body is sent;
// the server computes the new value.
func (c *Client) ToggleBookmark(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodPatch, qnaPath(id)+"/bookmark", nil, nil, nil)
}

// MarkDone sets the done flag to done via a query parameter. Callers toggling
// pass the negation of the current value.
func (c *Client) MarkDone(ctx context.Context, id int64, done bool) error {
	q := url.Values{"done": {strconv.FormatBool(done)}}
	return c.doJSON(ctx, http.MethodPatch, qnaPath(id)+"/mark", q, nil, nil)
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]qna.Category, error) {
	var out []qna.Category
	if err := c.doJSON(ctx, http.MethodGet, "/categories/", nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []qna.Category{}
	}
	return out, nil
}

// CreateCategory creates a category named name.
func (c *Client) CreateCategory(ctx context.Context, name string) (*qna.Category, error) {
	return c.writeCategory(ctx, http.MethodPost, "/categories/", name)
}

// UpdateCategory renames category id.
func (c *Client) UpdateCategory(ctx context.Context, id int64, name string) (*qna.Category, error) {
	return c.writeCategory(ctx, http.MethodPut, categoryPath(id), name)
}

// DeleteCategory deletes category id. The backend cascades to its questions.
func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, categoryPath(id), nil, nil, nil)
}

func (c *Client) writeQna(ctx context.Context, method, path string, body any) (*qna.Qna, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, method, path, nil, data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out qna.Qna
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode question: %w", err))
	}
	return &out, nil
}

func (c *Client) writeCategory(ctx context.Context, method, path, name string) (*qna.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequest("category name is required")
	}
	data, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, method, path, nil, data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out qna.Category
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode category: %w", err))
	}
	return &out, nil
}

// doJSON sends an optional JSON body and decodes a JSON response into out.
// out may be nil, and a *json.RawMessage receives the body verbatim.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		reader = bytes.NewReader(body)
		contentType = "application/json"
	}
	respBody, err := c.do(ctx, method, path, query, reader, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], respBody...)
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.NewInternal(fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	requestID, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		tErr := errors.NewTransport(method, target, err)
		tErr.Details["request_id"] = requestID
		return nil, tErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		qErr := errors.FromStatus(resp.StatusCode, string(b))
		if qErr.Details == nil {
			qErr.Details = map[string]any{}
		}
		qErr.Details["request_id"] = requestID
		return nil, qErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		tErr := errors.NewTransport(method, target, err)
		tErr.Details["request_id"] = requestID
		return nil, tErr
	}
	return data, nil
}

// uploadFile posts r as the multipart field "file".
func (c *Client) uploadFile(ctx context.Context, path, filename string, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("read import file: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return c.do(ctx, http.MethodPost, path, nil, &buf, mw.FormDataContentType())
}

func qnaPath(id int64) string {
	return "/qnas/" + strconv.FormatInt(id, 10)
}

func categoryPath(id int64) string {
	return "/categories/" + strconv.FormatInt(id, 10)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
