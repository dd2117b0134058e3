// Package gateway is the typed HTTP client for the RAG backend.
// Each operation is a single attempt with no client-side retry. History and
// file listing are fail-soft: on any failure they log and return an empty
// result. Ask, upload and delete return a RequestError or NetworkError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragchat/internal/logging"
	"ragchat/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultUploadField is the multipart field name for document parts.
	DefaultUploadField = "file_uploads"

	maxErrorBody = 1 << 20
)

// Answer is the backend reply to a question.
type Answer struct {
	Response string
	Sources  []types.Source
}

// Client talks to the RAG backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *zap.Logger
	uploadField    string
	requestTimeout time.Duration
	askTimeout     time.Duration
	validate       *validator.Validate
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger; the client logs under the gateway category.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.Named(l, logging.CategoryGateway) }
}

// WithUploadField overrides the multipart field name.
func WithUploadField(field string) Option {
	return func(c *Client) {
		if field != "" {
			c.uploadField = field
		}
	}
}

// WithRequestTimeout bounds history, listing, upload and delete calls.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithAskTimeout bounds a single question. Expiry surfaces as a NetworkError.
func WithAskTimeout(d time.Duration) Option {
	return func(c *Client) { c.askTimeout = d }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		logger:         zap.NewNop(),
		uploadField:    DefaultUploadField,
		requestTimeout: 30 * time.Second,
		askTimeout:     120 * time.Second,
		validate:       validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// OPERATIONS
// =============================================================================

// FetchHistory returns the stored transcript. It never fails: a missing
// token returns nil without a network call, and any error is logged and
// yields nil.
func (c *Client) FetchHistory(ctx context.Context, token string) []types.Message {
	if token == "" {
		return nil
	}

	var items []historyItemJSON
	if err := c.getJSON(ctx, OpHistory, token, "/history", &items); err != nil {
		c.logger.Warn("history unavailable, continuing with empty transcript", zap.Error(err))
		return nil
	}

	out := make([]types.Message, 0, len(items))
	for _, it := range items {
		role := types.Role(it.Role)
		if !role.Valid() {
			c.logger.Warn("dropping history entry with unknown role", zap.String("role", it.Role))
			continue
		}
		msg := types.Message{Role: role, Content: it.Content}
		if role == types.RoleAssistant {
			msg.Sources = toSources(it.Sources)
		}
		out = append(out, msg)
	}
	return out
}

// SendQuery asks a question. A non-success response returns a RequestError
// whose message is the server detail; transport failures and timeouts
// return a NetworkError.
func (c *Client) SendQuery(ctx context.Context, token, text string) (Answer, error) {
	if token == "" {
		return Answer{}, ErrAuthMissing
	}
	if strings.TrimSpace(text) == "" {
		return Answer{}, ErrEmptySelection
	}

	body, err := json.Marshal(askRequestJSON{Query: text})
	if err != nil {
		return Answer{}, fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.askTimeout)
	defer cancel()

	resp, reqID, err := c.do(ctx, OpAsk, token, http.MethodPost, "/ask", bytes.NewReader(body), "application/json")
	if err != nil {
		return Answer{}, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(OpAsk, reqID, resp); err != nil {
		return Answer{}, err
	}

	var out askResponseJSON
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Answer{}, &NetworkError{Op: OpAsk, Err: fmt.Errorf("decoding response: %w", err)}
	}

	c.logger.Debug("answer received",
		zap.String("request_id", reqID),
		zap.Int("sources", len(out.Sources)))

	return Answer{Response: out.Response, Sources: toSources(out.Sources)}, nil
}

// ListFiles returns the ingested documents. Fail-soft like FetchHistory.
func (c *Client) ListFiles(ctx context.Context, token string) []types.FileRecord {
	if token == "" {
		return nil
	}

	var items []fileJSON
	if err := c.getJSON(ctx, OpList, token, "/files", &items); err != nil {
		c.logger.Warn("file listing unavailable, treating knowledge base as empty", zap.Error(err))
		return nil
	}

	out := make([]types.FileRecord, len(items))
	for i, f := range items {
		out[i] = toFileRecord(f)
	}
	return out
}

// UploadFiles sends every payload as one multipart part under the configured
// field name. Success means a 2xx status; the body is not parsed.
func (c *Client) UploadFiles(ctx context.Context, token string, files []types.FilePayload) error {
	if token == "" {
		return ErrAuthMissing
	}
	if len(files) == 0 {
		return ErrEmptySelection
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		if err := c.validate.Var(f.Name, "required"); err != nil {
			return fmt.Errorf("payload name: %w", err)
		}
		if err := writePart(mw, c.uploadField, f); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, reqID, err := c.do(ctx, OpUpload, token, http.MethodPost, "/ingestfile", &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(OpUpload, reqID, resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("files uploaded", zap.String("request_id", reqID), zap.Int("count", len(files)))
	return nil
}

func writePart(mw *multipart.Writer, field string, f types.FilePayload) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	part, err := mw.CreateFormFile(field, f.Name)
	if err != nil {
		return fmt.Errorf("creating part for %s: %w", f.Name, err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return nil
}

// DeleteFile removes one document. A 2xx reply whose body carries an
// "error" field (file not found or not owned) is treated as a failure.
func (c *Client) DeleteFile(ctx context.Context, token, fileID string) error {
	if token == "" {
		return ErrAuthMissing
	}
	if fileID == "" {
		return ErrEmptySelection
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	path := "/files/" + url.PathEscape(fileID)
	resp, reqID, err := c.do(ctx, OpDelete, token, http.MethodDelete, path, nil, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(OpDelete, reqID, resp); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &NetworkError{Op: OpDelete, Err: fmt.Errorf("reading response: %w", err)}
	}
	var eb errorBodyJSON
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		c.logger.Warn("delete rejected in body",
			zap.String("request_id", reqID),
			zap.String("file_id", fileID),
			zap.String("error", eb.Error))
		return &RequestError{Op: OpDelete, Status: resp.StatusCode, Detail: eb.Error}
	}

	c.logger.Info("file deleted", zap.String("request_id", reqID), zap.String("file_id", fileID))
	return nil
}

// =============================================================================
// PLUMBING
// =============================================================================

func (c *Client) getJSON(ctx context.Context, op Op, token, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, reqID, err := c.do(ctx, op, token, http.MethodGet, path, nil, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, reqID, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// do issues one request with auth and correlation headers. Transport
// failures are wrapped as NetworkError.
func (c *Client) do(ctx context.Context, op Op, token, method, path string, body io.Reader, contentType string) (*http.Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("op", string(op)),
			zap.String("request_id", reqID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, reqID, &NetworkError{Op: op, Err: err}
	}

	c.logger.Debug("request completed",
		zap.String("op", string(op)),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp, reqID, nil
}

func (c *Client) checkStatus(op Op, reqID string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	re := &RequestError{Op: op, Status: resp.StatusCode, Detail: detailMessage(body)}
	c.logger.Warn("backend returned error status",
		zap.String("op", string(op)),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.String("detail", re.Detail))
	return re
}
