package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/conversation"
	"github.com/xaenox/gigachat-bot/internal/models"
	"github.com/xaenox/gigachat-bot/internal/storage"
)

const (
	dismissCallback = "dismiss"
	historyLimit    = 5
)

// messenger is the part of *tgbotapi.BotAPI used to talk to the chat.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is the Telegram frontend of the process's single conversation. It
// binds to one chat and turns the session's state changes into messages.
type Bot struct {
	api       *tgbotapi.BotAPI
	out       messenger
	session   *conversation.Session
	storage   storage.Storage
	sessionID string
	logger    *zap.Logger

	mu     sync.Mutex
	chatID int64
}

// New connects to Telegram. When chatID is 0 the bot binds to the first chat
// that writes to it.
func New(token string, chatID int64, session *conversation.Session, store storage.Storage, sessionID string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, chatID, session, store, sessionID, logger)
	b.api = api
	return b, nil
}

func newBot(out messenger, chatID int64, session *conversation.Session, store storage.Storage, sessionID string, logger *zap.Logger) *Bot {
	b := &Bot{
		out:       out,
		session:   session,
		storage:   store,
		sessionID: sessionID,
		logger:    logger,
		chatID:    chatID,
	}
	session.Subscribe(b.onStateChange)
	return b
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// bind attaches the bot to chatID on first contact and reports whether
// chatID is the bound chat.
func (b *Bot) bind(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chatID == 0 {
		b.chatID = chatID
		b.logger.Info("Bound to chat", zap.Int64("chat_id", chatID))
	}
	return b.chatID == chatID
}

func (b *Bot) boundChat() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chatID
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !b.bind(message.Chat.ID) {
		b.sendMessage(message.Chat.ID, "Sorry, this bot is already serving another conversation.")
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	if b.session.State().IsLoading {
		b.sendMessage(message.Chat.ID, "⏳ Still thinking about your previous message, please wait.")
		return
	}

	b.session.Dispatch(ctx, conversation.UpdateInput{Text: content})
	b.session.Dispatch(ctx, conversation.Submit{Text: content})
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil || !b.bind(query.Message.Chat.ID) {
		return
	}

	if query.Data == dismissCallback {
		b.session.Dispatch(ctx, conversation.Dismiss{})

		edit := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, err := b.out.Request(edit); err != nil {
			b.logger.Warn("Failed to remove dismiss button", zap.Error(err))
		}
	}

	if _, err := b.out.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err), zap.String("data", query.Data))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "history":
		b.handleHistory(ctx, message)
	case "raw":
		b.handleRaw(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome! 🍵
I'm a tea expert. Answer a few questions and I'll recommend the perfect tea and how to brew it.

Just send me a message to begin.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/history - Show the last messages of this conversation
/raw - Show the raw JSON of the last reply

Tap a suggestion button to use it as your answer.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	messages, err := b.storage.GetSessionMessages(ctx, b.sessionID, historyLimit)
	if err != nil {
		b.logger.Error("Failed to get session messages",
			zap.Error(err),
			zap.String("session_id", b.sessionID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve the conversation history.")
		return
	}

	if len(messages) == 0 {
		b.sendMessage(message.Chat.ID, "There are no messages yet.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatHistory(messages))
	msg.ParseMode = "MarkdownV2"
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send history message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func formatHistory(messages []models.Message) string {
	response := "*Recent messages:*\n\n"
	for _, msg := range messages {
		speaker := "Assistant"
		if msg.IsUser {
			speaker = "You"
		}
		response += fmt.Sprintf("*%s* _%s_\n", escapeMarkdown(speaker), escapeMarkdown(msg.Timestamp.Format("15:04")))
		response += escapeMarkdown(msg.Text) + "\n"
		if len(msg.Topics) > 0 {
			tags := make([]string, len(msg.Topics))
			for i, topic := range msg.Topics {
				tags[i] = escapeMarkdown("#" + strings.ReplaceAll(topic, " ", "_"))
			}
			response += strings.Join(tags, " ") + "\n"
		}
		response += "\n"
	}
	return response
}

func (b *Bot) handleRaw(message *tgbotapi.Message) {
	last, ok := b.session.State().LastReply()
	if !ok || last.RawJSON == "" {
		b.sendMessage(message.Chat.ID, "There is no reply yet.")
		return
	}
	b.sendMessage(message.Chat.ID, last.RawJSON)
}

// onStateChange renders session transitions into the bound chat.
func (b *Bot) onStateChange(prev, next conversation.State) {
	chatID := b.boundChat()
	if chatID == 0 {
		return
	}

	if !prev.IsLoading && next.IsLoading {
		if _, err := b.out.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
			b.logger.Warn("Failed to send typing action", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}

	if len(next.Messages) > len(prev.Messages) {
		last := next.Messages[len(next.Messages)-1]
		if !last.IsUser {
			b.sendReply(chatID, last)
		}
	}

	if next.Error != "" && next.Error != prev.Error {
		b.sendDismissableError(chatID, next.Error)
	}
}

func (b *Bot) sendReply(chatID int64, reply models.Message) {
	text := conversation.Render(reply)
	if reply.IsFinalRecommendation {
		text = "🍵 Final recommendation\n\n" + text
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(reply.Suggestions) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Suggestions))
		for _, s := range reply.Suggestions {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(s)))
		}
		keyboard := tgbotapi.NewOneTimeReplyKeyboard(rows...)
		keyboard.ResizeKeyboard = true
		msg.ReplyMarkup = keyboard
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}

	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendDismissableError(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Dismiss", dismissCallback)),
	)
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// escapeMarkdown escapes the characters reserved by MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
