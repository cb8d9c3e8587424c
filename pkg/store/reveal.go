package store

import (
	"context"
	"strings"
	"time"

	"github.com/saiaslabs/saias/pkg/chat"
)

// revealTask fills a placeholder word by word when the upstream call
// returned the whole reply atomically, so the UI still reads like a live
// stream. The task is bound to one message identity and owns that message's
// content for its lifetime: it refuses to touch a placeholder some other
// writer has already started filling, and a conversation switch, new chat,
// or logout cancels it before the state underneath changes.
type revealTask struct {
	messageID string
	reply     string
	words     []string
	interval  time.Duration

	// written is the prefix this task has produced so far; a content
	// mismatch means another writer got involved and the task stops.
	written string

	cancel chan struct{}
}

func newRevealTask(messageID, reply string, interval time.Duration) *revealTask {
	return &revealTask{
		messageID: messageID,
		reply:     reply,
		words:     strings.Split(reply, " "),
		interval:  interval,
		cancel:    make(chan struct{}),
	}
}

// stop cancels the task. Safe to call more than once; callers hold the
// store lock.
func (t *revealTask) stop() {
	select {
	case <-t.cancel:
	default:
		close(t.cancel)
	}
}

// run reveals the reply into the owning message, one word per interval,
// then writes the full text in a final step. Returns when done, cancelled,
// or evicted by a competing writer.
func (t *revealTask) run(ctx context.Context, s *Store) {
	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for i, word := range t.words {
		select {
		case <-ctx.Done():
			return
		case <-t.cancel:
			return
		case <-timer.C:
		}

		next := word
		if i > 0 {
			next = t.written + " " + word
		}
		if !s.applyReveal(t, next) {
			return
		}
		t.written = next

		timer.Reset(t.interval)
	}

	s.applyReveal(t, t.reply)
	s.clearReveal(t)
}

// applyReveal writes the next prefix into the task's message. Returns false
// when the message is gone or no longer owned by this task.
func (s *Store) applyReveal(t *revealTask, next string) bool {
	s.mu.Lock()
	var target *chat.Message
	for _, m := range s.messages {
		if m.ID == t.messageID {
			target = m
			break
		}
	}
	if target == nil || target.Content != t.written {
		s.mu.Unlock()
		return false
	}
	target.Content = next
	s.mu.Unlock()

	s.mirror(context.Background())
	s.changed()
	return true
}

// clearReveal drops the task reference once it has finished.
func (s *Store) clearReveal(t *revealTask) {
	s.mu.Lock()
	if s.reveal == t {
		s.reveal = nil
	}
	s.mu.Unlock()
}

// cancelRevealLocked stops any running reveal. Caller holds the lock.
func (s *Store) cancelRevealLocked() {
	if s.reveal != nil {
		s.reveal.stop()
		s.reveal = nil
	}
}
