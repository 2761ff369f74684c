package transcribe

import "github.com/alnah/go-speechscreen/internal/apierr"

// AudioTranscriber exports audioTranscriber for mocks.
type AudioTranscriber = audioTranscriber

// NewTestOpenAITranscriber builds an OpenAITranscriber around a mock client.
func NewTestOpenAITranscriber(client AudioTranscriber, model string, retry apierr.RetryConfig) *OpenAITranscriber {
	return newOpenAITranscriber(client, options{model: model, retry: retry})
}

// ClassifyError exports classifyError for testing.
var ClassifyError = classifyError
