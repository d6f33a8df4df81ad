package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	"golang.org/x/time/rate"

	"sui-buybot/shared/env"
)

var (
	bot             *telego.Bot
	isInitialized   bool
	telegramLimiter *rate.Limiter
)

// TransientError marks a delivery failure worth retrying (network, timeout, 429, 5xx).
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient delivery failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that must not be retried for this event
// (bot kicked, chat not found, malformed message).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent delivery failure: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// RetryAfter returns the server-advised backoff for a transient failure, zero if none.
func RetryAfter(err error) time.Duration {
	var tr *TransientError
	if errors.As(err, &tr) {
		return tr.RetryAfter
	}
	return 0
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.ErrorCode == 429:
			retryAfter := time.Second
			if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
				retryAfter = time.Duration(apiErr.Parameters.RetryAfter) * time.Second
			}
			return &TransientError{Err: err, RetryAfter: retryAfter}
		case apiErr.ErrorCode >= 500:
			return &TransientError{Err: err}
		default:
			// 400/403 family: chat gone, bot blocked, bad markup. Not worth retrying.
			return &PermanentError{Err: err}
		}
	}
	// Anything else is a network-level failure.
	return &TransientError{Err: err}
}

func InitTelegramBot() error {
	if isInitialized && bot != nil {
		log.Println("INFO: Telegram bot already initialized.")
		return nil
	}

	isInitialized = false
	bot = nil
	telegramLimiter = nil

	botToken := env.TelegramBotToken
	if botToken == "" {
		return fmt.Errorf("critical error: TELEGRAM_BOT_TOKEN missing from env configuration")
	}

	log.Println("Initializing Telegram bot API...")
	var err error
	bot, err = telego.NewBot(botToken, telego.WithDefaultLogger(false, true))
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to initialize Telegram bot API: %w", err)
	}

	log.Println("Verifying bot token with Telegram API (GetMe)...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	userInfo, err := bot.GetMe(ctx)
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to verify bot token with GetMe API call: %w", err)
	}

	isInitialized = true
	// Telegram bots are limited to ~30 msg/s globally and 20 msg/min per group;
	// one token per second keeps the dispatcher well under both.
	telegramLimiter = rate.NewLimiter(rate.Limit(1), 3)
	log.Printf("Telegram bot initialized successfully for @%s", userInfo.Username)
	return nil
}

func GetBotInstance() *telego.Bot {
	if !isInitialized || bot == nil {
		log.Println("WARN: GetBotInstance called but bot is not initialized or initialization failed.")
	}
	return bot
}

// SendSystemMessage mirrors an operator log line to the system log chat.
// Fire and forget: a failure here must never affect the caller.
func SendSystemMessage(text string) {
	if bot == nil || env.SystemLogChatID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if telegramLimiter != nil {
		if err := telegramLimiter.Wait(ctx); err != nil {
			return
		}
	}
	_, err := bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: env.SystemLogChatID},
		Text:      text,
		ParseMode: telego.ModeHTML,
	})
	if err != nil {
		log.Printf("ERROR: Failed to send system log message to Telegram: %v", err)
	}
}

// Transport delivers rendered messages to chats and channels over Telegram.
// Every call is a single attempt; retry policy belongs to the caller.
type Transport struct {
	bot     *telego.Bot
	limiter *rate.Limiter

	mu     sync.Mutex
	pinned map[string]int // channel -> message ID of the currently pinned summary
}

// NewTransport wraps the initialized bot instance. InitTelegramBot must have
// succeeded before calling this.
func NewTransport() (*Transport, error) {
	if bot == nil || !isInitialized {
		return nil, fmt.Errorf("telegram bot is not initialized")
	}
	return &Transport{
		bot:     bot,
		limiter: telegramLimiter,
		pinned:  make(map[string]int),
	}, nil
}

func (t *Transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return &TransientError{Err: err}
	}
	return nil
}

func channelID(channel string) telego.ChatID {
	return telego.ChatID{Username: channel}
}

// Deliver sends one alert to a destination chat, as a photo caption when the
// destination configured custom media.
func (t *Transport) Deliver(ctx context.Context, chatID int64, mediaFileID string, message string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	var err error
	if mediaFileID != "" {
		_, err = t.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:    telego.ChatID{ID: chatID},
			Photo:     telego.InputFile{FileID: mediaFileID},
			Caption:   message,
			ParseMode: telego.ModeHTML,
		})
	} else {
		_, err = t.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:             telego.ChatID{ID: chatID},
			Text:               message,
			ParseMode:          telego.ModeHTML,
			LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
		})
	}
	return classify(err)
}

// Broadcast sends a message to a public channel by username.
func (t *Transport) Broadcast(ctx context.Context, channel string, message string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:             channelID(channel),
		Text:               message,
		ParseMode:          telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	return classify(err)
}

// PinSummary posts the leaderboard summary to the channel and pins it,
// remembering the message ID so the next cycle can unpin it.
func (t *Transport) PinSummary(ctx context.Context, channel string, message string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	msg, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:             channelID(channel),
		Text:               message,
		ParseMode:          telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil {
		return classify(err)
	}
	err = t.bot.PinChatMessage(ctx, &telego.PinChatMessageParams{
		ChatID:              channelID(channel),
		MessageID:           msg.MessageID,
		DisableNotification: true,
	})
	if err != nil {
		return classify(err)
	}
	t.mu.Lock()
	t.pinned[channel] = msg.MessageID
	t.mu.Unlock()
	return nil
}

// UnpinPrevious removes the previously pinned summary, if any was recorded.
func (t *Transport) UnpinPrevious(ctx context.Context, channel string) error {
	t.mu.Lock()
	messageID, ok := t.pinned[channel]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	err := t.bot.UnpinChatMessage(ctx, &telego.UnpinChatMessageParams{
		ChatID:    channelID(channel),
		MessageID: messageID,
	})
	if err != nil {
		return classify(err)
	}
	t.mu.Lock()
	delete(t.pinned, channel)
	t.mu.Unlock()
	return nil
}
