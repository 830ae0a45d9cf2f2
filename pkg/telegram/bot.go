// Package telegram is the employee-facing chat gateway. It speaks the
// bot API over long polling and hands everything that is not an account
// command to the agent surface.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/backoffice-suite/boar/pkg/agent"
	"github.com/backoffice-suite/boar/pkg/llm"
	"github.com/backoffice-suite/boar/pkg/otp"
)

const welcomeText = `Hi! I'm your back-office assistant.

/link <work email> — connect this chat to your employee account
/verify <code> — confirm the code sent to your email
/unlink — disconnect this chat

Once linked, just ask me about your leave, payslips, attendance or tasks.`

// Bot runs the long-polling update loop.
type Bot struct {
	api     *tgbotapi.BotAPI
	surface *agent.Surface
	auth    *otp.Authenticator
	logger  *slog.Logger
}

// New returns nil when no token is configured; the rest of the runtime
// works without the chat gateway.
func New(token string, surface *agent.Surface, auth *otp.Authenticator) (*Bot, error) {
	if token == "" {
		slog.Warn("No Telegram bot token configured, chat gateway disabled")
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect Telegram bot: %w", err)
	}
	return &Bot{
		api:     api,
		surface: surface,
		auth:    auth,
		logger:  slog.Default().With("component", "telegram-bot"),
	}, nil
}

// Run polls for updates until the context is cancelled. Nil-safe.
func (b *Bot) Run(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.logger.Info("Telegram bot polling", "username", b.api.Self.UserName)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	externalID := strconv.FormatInt(msg.Chat.ID, 10)
	text := strings.TrimSpace(msg.Text)

	var reply string
	switch {
	case text == "/start" || text == "/help":
		reply = welcomeText
	case strings.HasPrefix(text, "/link"):
		reply = b.handleLink(ctx, externalID, strings.TrimSpace(strings.TrimPrefix(text, "/link")))
	case strings.HasPrefix(text, "/verify"):
		username := ""
		if msg.From != nil {
			username = msg.From.UserName
		}
		reply = b.handleVerify(ctx, externalID, strings.TrimSpace(strings.TrimPrefix(text, "/verify")), username)
	case text == "/unlink":
		reply = b.handleUnlink(ctx, externalID)
	default:
		var err error
		reply, err = b.surface.Chat(ctx, externalID, text)
		if err != nil {
			b.logger.Error("Chat turn failed", "external_id", externalID, "error", err)
			if errors.Is(err, llm.ErrUnavailable) {
				reply = "The assistant is not available right now. Account commands (/link, /verify, /unlink) still work."
			} else {
				reply = "Something went wrong handling that. Please try again."
			}
		}
	}

	b.send(msg.Chat.ID, reply)
}

func (b *Bot) handleLink(ctx context.Context, externalID, email string) string {
	if email == "" {
		return "Usage: /link your.name@company.com"
	}
	result, err := b.auth.LinkStart(ctx, externalID, email)
	switch {
	case errors.Is(err, otp.ErrAlreadyLinked):
		return "This chat is already linked. Send /unlink first if you want to re-link."
	case errors.Is(err, otp.ErrEmployeeNotFound):
		return "I couldn't find an employee with that email. Check the address and try again."
	case err != nil:
		b.logger.Error("Link start failed", "external_id", externalID, "error", err)
		return "Linking failed on our side. Please try again later."
	}
	if result.EmailSent {
		return "I've emailed you a 6-digit code. Send /verify <code> within 10 minutes."
	}
	if result.DemoCode != "" {
		return fmt.Sprintf("Email delivery is unavailable; your demo code is %s. Send /verify %s.",
			result.DemoCode, result.DemoCode)
	}
	return "I couldn't send the code email. Please contact HR."
}

func (b *Bot) handleVerify(ctx context.Context, externalID, code, username string) string {
	if code == "" {
		return "Usage: /verify 123456"
	}
	_, err := b.auth.Verify(ctx, externalID, code, username)
	switch {
	case errors.Is(err, otp.ErrInvalidCode):
		return "That code isn't right. Check the email and try again."
	case errors.Is(err, otp.ErrExpired):
		return "That code has expired or had too many attempts. Send /link to start over."
	case err != nil:
		b.logger.Error("Verify failed", "external_id", externalID, "error", err)
		return "Verification failed on our side. Please try again later."
	}
	return "You're linked! Ask me about your leave balance, payslips, attendance or tasks."
}

func (b *Bot) handleUnlink(ctx context.Context, externalID string) string {
	if err := b.auth.Unlink(ctx, externalID); err != nil {
		b.logger.Error("Unlink failed", "external_id", externalID, "error", err)
		return "Unlinking failed on our side. Please try again later."
	}
	return "This chat is no longer linked. Send /link to connect again."
}

func (b *Bot) send(chatID int64, text string) {
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
}
