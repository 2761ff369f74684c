package features

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-speechscreen/internal/apierr"
	"github.com/alnah/go-speechscreen/internal/lang"
)

// Client talks to the feature sidecar:
//
//	POST {baseURL}/acoustic    multipart: file          -> {"features": {...}}
//	POST {baseURL}/linguistic  json: {text, language}   -> {"features": {...}}
//
// Null values in a response become NaN. Responses are completed against
// the schema so callers always see the full set of names.
type Client struct {
	baseURL string
	http    *http.Client
	schema  Schema
	retry   apierr.RetryConfig
}

var (
	_ AcousticExtractor   = (*Client)(nil)
	_ LinguisticExtractor = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.http = &http.Client{Timeout: d}
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg apierr.RetryConfig) ClientOption {
	return func(cl *Client) { cl.retry = cfg }
}

// NewClient creates a feature service client for schema.
func NewClient(baseURL string, schema Schema, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		schema:  schema,
		retry:   apierr.DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type featureResponse struct {
	Features map[string]*float64 `json:"features"`
}

type linguisticRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// ExtractAcoustic uploads the segment and returns its acoustic vector.
func (c *Client) ExtractAcoustic(ctx context.Context, segmentPath string) (Vector, error) {
	v, err := apierr.RetryWithBackoff(ctx, c.retry, func() (Vector, error) {
		body, contentType, err := multipartFile(segmentPath)
		if err != nil {
			return nil, err
		}
		return c.post(ctx, "/acoustic", contentType, body)
	}, apierr.IsRetryable)
	if err != nil {
		return nil, c.fail(ctx, "acoustic", filepath.Base(segmentPath), err)
	}
	return c.schema.Acoustic.Conform(v)
}

// ExtractLinguistic sends the transcript and returns its linguistic vector.
func (c *Client) ExtractLinguistic(ctx context.Context, text, language string) (Vector, error) {
	code, err := lang.Validate(language)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(linguisticRequest{Text: text, Language: code})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrFeatureExtraction, err)
	}

	v, err := apierr.RetryWithBackoff(ctx, c.retry, func() (Vector, error) {
		return c.post(ctx, "/linguistic", "application/json", bytes.NewReader(payload))
	}, apierr.IsRetryable)
	if err != nil {
		return nil, c.fail(ctx, "linguistic", code, err)
	}
	return c.schema.Linguistic.Conform(v)
}

func (c *Client) fail(ctx context.Context, kind, subject string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s (%s): %w", ErrFeatureExtraction, kind, subject, err)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (Vector, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%v: %w", err, apierr.ErrUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apierr.FromStatus(resp.StatusCode, string(msg))
	}

	var out featureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	v := make(Vector, len(out.Features))
	for k, x := range out.Features {
		if x == nil {
			v[k] = math.NaN()
		} else {
			v[k] = *x
		}
	}
	return v, nil
}

func multipartFile(path string) (io.Reader, string, error) {
	fd, err := os.Open(path) // #nosec G304 -- segment path in the request work dir
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = fd.Close() }()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, fd); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &b, w.FormDataContentType(), nil
}
