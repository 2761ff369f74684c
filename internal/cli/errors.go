package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrFileNotFound indicates the specified recording does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrS3CredentialsMissing indicates the S3 audit sink has no credentials.
	ErrS3CredentialsMissing = errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set for the s3 audit sink")
)

// Environment variables read by the CLI.
const (
	EnvOpenAIAPIKey       = "OPENAI_API_KEY"
	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
)
