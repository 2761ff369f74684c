package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-speechscreen/internal/apierr"
	"github.com/alnah/go-speechscreen/internal/lang"
)

// HTTPTranscriber posts segments to a speech recognition sidecar:
//
//	POST {baseURL}/transcribe  multipart: file, language
//	200 {"text": "...", "language": "en"}
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
	retry   apierr.RetryConfig
}

var _ Transcriber = (*HTTPTranscriber)(nil)

// NewHTTPTranscriber creates a sidecar client rooted at baseURL.
func NewHTTPTranscriber(baseURL string, opts ...Option) *HTTPTranscriber {
	o := buildOptions(opts)
	return &HTTPTranscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  o.httpClient,
		retry:   o.retry,
	}
}

type sidecarResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe uploads audioPath and returns the recognized text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	code, err := lang.Validate(language)
	if err != nil {
		return "", err
	}

	text, err := apierr.RetryWithBackoff(ctx, t.retry, func() (string, error) {
		return t.post(ctx, audioPath, code)
	}, apierr.IsRetryable)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %w", ErrTranscription, filepath.Base(audioPath), err)
	}
	return text, nil
}

func (t *HTTPTranscriber) post(ctx context.Context, audioPath, code string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	fd, err := os.Open(audioPath) // #nosec G304 -- segment path in the request work dir
	if err != nil {
		return "", err
	}
	defer func() { _ = fd.Close() }()
	if _, err := io.Copy(fw, fd); err != nil {
		return "", err
	}
	if err := w.WriteField("language", code); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transcribe", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%v: %w", err, apierr.ErrUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apierr.FromStatus(resp.StatusCode, string(msg))
	}

	var out sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
