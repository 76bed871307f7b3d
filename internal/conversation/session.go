package conversation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/models"
)

// Sender performs one request/reply exchange. *gigachat.Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, history []models.Message) (models.StructuredReply, error)
}

// Listener observes every state change. Listeners run synchronously, in
// registration order, and must not call Dispatch.
type Listener func(prev, next State)

// Session hosts the single conversation of a process. At most one send is in
// flight at a time: Submit is ignored while a reply is pending.
type Session struct {
	sender Sender
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	listeners []Listener

	// notifyMu keeps listener calls in state order.
	notifyMu sync.Mutex
	inflight sync.WaitGroup
}

func NewSession(sender Sender, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers l for all subsequent state changes.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Dispatch applies ev. An accepted Submit starts the exchange in the
// background; ctx values are kept but its cancellation is not, since a send
// is never abandoned mid-flight.
func (s *Session) Dispatch(ctx context.Context, ev Event) {
	s.mu.Lock()
	prev := s.state
	next, send := prev.apply(ev, s.now())
	s.state = next
	listeners := s.listeners

	s.notifyMu.Lock()
	s.mu.Unlock()

	for _, l := range listeners {
		l(prev, next)
	}
	s.notifyMu.Unlock()

	if submit, ok := ev.(Submit); ok && !send && prev.IsLoading {
		s.logger.Debug("Ignoring submit while a reply is pending", zap.Int("length", len(submit.Text)))
	}
	if !send {
		return
	}

	s.inflight.Add(1)
	go s.send(context.WithoutCancel(ctx), next.Messages)
}

func (s *Session) send(ctx context.Context, history []models.Message) {
	defer s.inflight.Done()

	reply, err := s.sender.SendMessage(ctx, history)
	if err != nil {
		s.logger.Warn("Message exchange failed", zap.Error(err), zap.Int("history", len(history)))
		s.Dispatch(ctx, sendFailed{err: err})
		return
	}
	s.Dispatch(ctx, replyReceived{reply: reply})
}

// Wait blocks until the in-flight exchange, if any, has been applied.
func (s *Session) Wait() {
	s.inflight.Wait()
}
