package external

import (
	"context"
	"fmt"
	"sync"

	"mailroom/internal/types"
)

// StubSender implements types.Sender without any network access. It logs
// each send and remembers the messages, so local runs and tests can assert
// on what would have been delivered.
type StubSender struct {
	logger types.Logger

	mu   sync.Mutex
	sent []types.SendInput
	next int64
}

// NewStubSender creates a StubSender. Used when EMAIL_PROVIDER=stub or in
// local mode, so the service boots without vendor credentials.
func NewStubSender(logger types.Logger) *StubSender {
	return &StubSender{logger: logger}
}

// Send records the message and returns a deterministic fake message ID.
func (s *StubSender) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.mu.Lock()
	s.next++
	id := fmt.Sprintf("msg_stub_%d", s.next)
	s.sent = append(s.sent, input)
	s.mu.Unlock()

	s.logger.Info("stub: email send",
		"to", input.To,
		"subject", input.Subject,
		"from", input.FromAddress,
		"message_id", id,
	)
	return id, nil
}

// Sent returns a copy of everything sent so far.
func (s *StubSender) Sent() []types.SendInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SendInput, len(s.sent))
	copy(out, s.sent)
	return out
}

var _ types.Sender = (*StubSender)(nil)
