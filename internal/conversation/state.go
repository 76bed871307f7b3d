package conversation

import (
	"strings"
	"time"

	"github.com/xaenox/gigachat-bot/internal/models"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the client-visible conversation state. Messages is replaced, not
// appended in place, so snapshots handed to listeners stay stable.
type State struct {
	Messages     []models.Message
	IsLoading    bool
	Error        string
	PendingInput string
}

func (s State) Phase() Phase {
	switch {
	case s.IsLoading:
		return PhaseSending
	case s.Error != "":
		return PhaseError
	default:
		return PhaseIdle
	}
}

// LastReply returns the most recent assistant message.
func (s State) LastReply() (models.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if !s.Messages[i].IsUser {
			return s.Messages[i], true
		}
	}
	return models.Message{}, false
}

// Event is a user intent or a completion outcome.
type Event interface {
	isEvent()
}

// Submit sends Text as the next user turn.
type Submit struct {
	Text string
}

// UpdateInput records the text currently being typed.
type UpdateInput struct {
	Text string
}

// Dismiss clears a displayed error.
type Dismiss struct{}

type replyReceived struct {
	reply models.StructuredReply
}

type sendFailed struct {
	err error
}

func (Submit) isEvent()        {}
func (UpdateInput) isEvent()   {}
func (Dismiss) isEvent()       {}
func (replyReceived) isEvent() {}
func (sendFailed) isEvent()    {}

// apply returns the state after ev and whether a send must start.
func (s State) apply(ev Event, now time.Time) (State, bool) {
	switch ev := ev.(type) {
	case Submit:
		text := strings.TrimSpace(ev.Text)
		if text == "" || s.IsLoading {
			return s, false
		}
		s.Messages = appendMessage(s.Messages, models.NewUserMessage(text, now))
		s.PendingInput = ""
		s.IsLoading = true
		s.Error = ""
		return s, true

	case UpdateInput:
		s.PendingInput = ev.Text
		return s, false

	case Dismiss:
		s.Error = ""
		return s, false

	case replyReceived:
		if !s.IsLoading {
			return s, false
		}
		s.Messages = appendMessage(s.Messages, models.NewAssistantMessage(ev.reply, now))
		s.IsLoading = false
		return s, false

	case sendFailed:
		if !s.IsLoading {
			return s, false
		}
		s.IsLoading = false
		s.Error = errorMessage(ev.err)
		return s, false

	default:
		return s, false
	}
}

func appendMessage(msgs []models.Message, msg models.Message) []models.Message {
	out := make([]models.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, msg)
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "Something went wrong"
	}
	return err.Error()
}
