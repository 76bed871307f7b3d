package conversation

import (
	"fmt"
	"math"
	"strings"

	"github.com/xaenox/gigachat-bot/internal/models"
)

// Render formats an assistant message for display: the response followed by
// the comment, mood, confidence and topics when present. User messages are
// returned as typed.
func Render(msg models.Message) string {
	if msg.IsUser {
		return msg.Text
	}

	var b strings.Builder
	b.WriteString(msg.Text)
	if strings.TrimSpace(msg.Comment) != "" {
		fmt.Fprintf(&b, "\n\n💭 %s", msg.Comment)
	}
	if strings.TrimSpace(msg.Emotion) != "" {
		fmt.Fprintf(&b, "\n\n😊 Mood: %s", msg.Emotion)
	}
	if msg.Confidence != nil {
		fmt.Fprintf(&b, "\n📊 Confidence: %d%%", int(math.Round(*msg.Confidence*100)))
	}
	if len(msg.Topics) > 0 {
		fmt.Fprintf(&b, "\n\n🏷️ Topics: %s", strings.Join(msg.Topics, ", "))
	}
	return b.String()
}
