package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// Transcriber turns inbound audio into text.
type Transcriber struct {
	client *openai.Client
}

// NewTranscriber creates a Whisper-backed transcriber.
func NewTranscriber(apiKey string) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &Transcriber{client: openai.NewClient(apiKey)}, nil
}

// Transcribe converts an audio stream to text. filename carries the extension
// the API uses to pick a decoder.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   audio,
		FilePath: filename,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}
