// Package transcribe turns speech segments into text through an external
// speech recognition service: the OpenAI transcription API or an HTTP
// sidecar running a per-language model.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-speechscreen/internal/apierr"
	"github.com/alnah/go-speechscreen/internal/lang"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.Whisper1

// Transcriber transcribes one audio segment in the given language.
// An unsupported language fails with lang.ErrUnsupported; every other
// failure wraps ErrTranscription.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// audioTranscriber is implemented by *openai.Client.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

var (
	_ Transcriber      = (*OpenAITranscriber)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAITranscriber calls the OpenAI transcription endpoint with retries
// on transient errors.
type OpenAITranscriber struct {
	client audioTranscriber
	model  string
	retry  apierr.RetryConfig
}

// Option configures a transcriber.
type Option func(*options)

type options struct {
	model      string
	retry      apierr.RetryConfig
	httpClient *http.Client
}

// WithModel overrides the recognition model name.
func WithModel(m string) Option {
	return func(o *options) {
		if m != "" {
			o.model = m
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg apierr.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithHTTPClient sets the HTTP client used by HTTPTranscriber.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		retry:      apierr.DefaultRetryConfig,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewOpenAITranscriber creates a transcriber from an API key.
func NewOpenAITranscriber(apiKey string, opts ...Option) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	o := buildOptions(opts)
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = o.httpClient
	return newOpenAITranscriber(openai.NewClientWithConfig(cfg), o), nil
}

func newOpenAITranscriber(client audioTranscriber, o options) *OpenAITranscriber {
	if o.model == "" {
		o.model = DefaultOpenAIModel
	}
	return &OpenAITranscriber{client: client, model: o.model, retry: o.retry}
}

// Transcribe sends audioPath to OpenAI and returns the plain text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	code, err := lang.Validate(language)
	if err != nil {
		return "", err
	}

	req := openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
		Language: code,
	}

	text, err := apierr.RetryWithBackoff(ctx, t.retry, func() (string, error) {
		resp, err := t.client.CreateTranscription(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		return resp.Text, nil
	}, apierr.IsRetryable)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	return text, nil
}

// classifyError maps go-openai errors to apierr sentinels.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apierr.FromStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apierr.FromStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}
