package store

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/saiaslabs/saias/pkg/backend"
	"github.com/saiaslabs/saias/pkg/chat"
)

// SendOption tweaks a single send.
type SendOption func(*sendConfig)

type sendConfig struct {
	restoreInput bool
}

// WithInputRestore puts the sent text back into the input buffer if the
// send fails. Off by default.
func WithInputRestore() SendOption {
	return func(c *sendConfig) {
		c.restoreInput = true
	}
}

// Send submits the input buffer to the backend with an optimistic UI
// update: the user message and an empty assistant placeholder appear
// immediately, then the placeholder is reconciled with the server reply or
// rolled back on failure. Blocks until the reply (reveal included) is in
// place. One send may be outstanding at a time.
func (s *Store) Send(ctx context.Context, opts ...SendOption) error {
	var cfg sendConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	text := strings.TrimSpace(s.input)
	switch {
	case text == "":
		s.mu.Unlock()
		return nil
	case !s.session.Present():
		s.mu.Unlock()
		return ErrNoSession
	case !s.connected:
		s.mu.Unlock()
		return ErrNotConnected
	case s.sending:
		s.mu.Unlock()
		return ErrSendInFlight
	}

	// Optimistic step: user turn plus pending placeholder, input and
	// error cleared, loading on.
	userMsg := chat.NewUserMessage(text)
	placeholder := chat.NewPlaceholder()
	s.messages = append(s.messages, userMsg, placeholder)
	s.input = ""
	s.errMsg = ""
	s.loading = true
	s.sending = true
	token := s.token()
	conversationID := s.activeID
	s.mu.Unlock()
	s.mirror(ctx)
	s.changed()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.sending = false
		s.mu.Unlock()
		s.changed()
	}()

	result, err := s.backend.Send(ctx, token, text, conversationID)
	if err != nil {
		s.rollback(ctx, userMsg.ID, placeholder.ID, text, err, cfg.restoreInput)
		return err
	}

	s.confirm(ctx, text, result)
	return nil
}

// confirm reconciles the server result into the optimistic placeholder.
func (s *Store) confirm(ctx context.Context, sentText string, result *backend.ChatResult) {
	s.mu.Lock()

	target := s.findPlaceholder(sentText)
	if target == nil {
		// The placeholder is gone (conversation switched away).
		// Nothing to reconcile into.
		s.mu.Unlock()
		s.logger.Warn("send confirmed but placeholder is gone")
		return
	}

	target.ServerID = result.ServerID
	if !result.CreatedAt.IsZero() {
		target.CreatedAt = result.CreatedAt
	}

	adopted := false
	if s.activeID == "" && result.ConversationID != "" {
		s.activeID = result.ConversationID
		adopted = true
	}

	var task *revealTask
	if s.revealInterval > 0 && result.Reply != "" {
		task = newRevealTask(target.ID, result.Reply, s.revealInterval)
		s.reveal = task
	} else {
		target.Content = result.Reply
	}
	s.mu.Unlock()
	s.mirror(ctx)
	s.changed()

	if task != nil {
		task.run(ctx, s)
	}

	if adopted {
		s.LoadConversations(ctx)
	}
}

// rollback removes the optimistic pair so the transcript returns to its
// pre-send state, and surfaces the failure.
func (s *Store) rollback(ctx context.Context, userID, placeholderID, text string, sendErr error, restoreInput bool) {
	s.mu.Lock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID == userID || m.ID == placeholderID {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	s.errMsg = "failed to send message: " + sendErr.Error()
	if restoreInput {
		s.input = text
	}
	s.mu.Unlock()
	s.mirror(ctx)
	s.changed()

	s.logger.Warn("send rolled back", zap.Error(sendErr))
}

// findPlaceholder locates the most recently appended empty placeholder
// whose paired user message carries the just-sent text. Caller holds the
// lock.
func (s *Store) findPlaceholder(sentText string) *chat.Message {
	for i := len(s.messages) - 1; i >= 1; i-- {
		m := s.messages[i]
		prev := s.messages[i-1]
		if m.IsPlaceholder() && prev.Role == chat.RoleUser && prev.Content == sentText {
			return m
		}
	}
	return nil
}
