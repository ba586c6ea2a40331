package gateway

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/atendai/orchestrator/internal/model"
)

// Notifier publishes tenant lifecycle notifications. The NATS notifier
// satisfies it.
type Notifier interface {
	Publish(ctx context.Context, tenantID, conversationID string, eventType model.EventType, payload map[string]any) error
}

// ObjectStorage stores inbound media blobs and returns a retrievable URL.
type ObjectStorage interface {
	Upload(ctx context.Context, tenantID, name string, data []byte, contentType string) (string, error)
}

// Transcriber turns inbound audio into text. llm.Transcriber satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// MemoryStorage is an in-process ObjectStorage for wiring without a bucket and
// for tests.
type MemoryStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStorage creates an empty in-process storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][]byte)}
}

// Upload stores the blob and returns a mem:// URL.
func (s *MemoryStorage) Upload(ctx context.Context, tenantID, name string, data []byte, contentType string) (string, error) {
	key := tenantID + "/" + name
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return fmt.Sprintf("mem://%s", key), nil
}
