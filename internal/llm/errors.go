package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when a provider answered with no content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// transientSignatures are provider error strings that mark a failure as
// retryable even when the error carries no status code.
var transientSignatures = []string{
	"overloaded_error",
	"rate limit",
	"rate_limit",
	"timeout",
	"connection reset",
	"temporarily unavailable",
	"unexpected eof",
}

// Retryable classifies a generation failure: true means the next candidate
// model may be tried, false means the turn must abort.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return openaiErr.HTTPStatusCode >= 500 || openaiErr.HTTPStatusCode == 429
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode >= 500 || anthropicErr.StatusCode == 429
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
