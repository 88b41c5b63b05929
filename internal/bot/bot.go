package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mev-alerts/internal/metrics"
	"mev-alerts/internal/model"
	"mev-alerts/internal/subscriber"
	"mev-alerts/internal/telegram"
)

const (
	greeting      = "Hi! I watch dYdX blocks and tell you when one carries more MEV than you care about."
	saveFailed    = "Sorry, I could not save that. Please try again in a moment."
	retryBackoff  = 5 * time.Second
	defaultPollTO = 30 * time.Second
)

// Client is the part of the Telegram API the bot uses.
type Client interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
}

// Directory looks up stored subscribers.
type Directory interface {
	Get(id string) (model.Subscriber, bool)
}

// Bot long-polls Telegram and routes chat messages into the configuration
// dialog. It never touches the upstream API, so a slow evaluation cycle
// cannot delay a reply.
type Bot struct {
	client      Client
	dialog      *subscriber.Dialog
	directory   Directory
	pollTimeout time.Duration
	logger      zerolog.Logger
}

// New wires a bot.
func New(client Client, dialog *subscriber.Dialog, directory Directory, pollTimeout time.Duration, logger zerolog.Logger) *Bot {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTO
	}
	return &Bot{
		client:      client,
		dialog:      dialog,
		directory:   directory,
		pollTimeout: pollTimeout,
		logger:      logger.With().Str("component", "bot").Logger(),
	}
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().Dur("poll_timeout", b.pollTimeout).Msg("bot started")
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info().Msg("bot stopped")
				return nil
			}
			b.logger.Warn().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				b.logger.Info().Msg("bot stopped")
				return nil
			case <-time.After(retryBackoff):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			if upd.Message == nil || strings.TrimSpace(upd.Message.Text) == "" {
				continue
			}
			b.Handle(ctx, strconv.FormatInt(upd.Message.Chat.ID, 10), upd.Message.Text)
		}
	}
}

// Handle answers one text message from chatID.
func (b *Bot) Handle(ctx context.Context, chatID, text string) {
	command := commandOf(text)
	log := b.logger.With().Str("subscriber", chatID).Str("command", command).Logger()

	reply, err := b.route(ctx, chatID, command, text)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, subscriber.ErrInvalidInput):
		result = "invalid_input"
		log.Debug().Err(err).Msg("invalid reply")
	default:
		var perr *subscriber.PersistenceError
		if errors.As(err, &perr) {
			result = "persistence_error"
			log.Error().Err(err).Msg("failed to save subscriber")
		} else {
			result = "error"
			log.Error().Err(err).Msg("failed to handle message")
		}
		reply = saveFailed
	}
	metrics.DialogReplies.WithLabelValues(command, result).Inc()

	if reply == "" {
		return
	}
	if err := b.client.SendMessage(ctx, chatID, reply, ""); err != nil {
		log.Warn().Err(err).Msg("failed to send reply")
	}
}

func (b *Bot) route(ctx context.Context, chatID, command, text string) (string, error) {
	cur, known := b.directory.Get(chatID)

	switch command {
	case "/start":
		if !known {
			out, err := b.dialog.Configure(ctx, chatID)
			return greeting + "\n" + out.Message, err
		}
		if cur.Stage.InDialog() {
			return greeting + "\n" + subscriber.Prompt(cur.Stage), nil
		}
		return greeting + "\n" + subscriber.Summary(cur), nil

	case "/configure":
		out, err := b.dialog.Configure(ctx, chatID)
		return out.Message, err

	case "/stop":
		if !known {
			return "You have no notifications configured. Send /configure to set them up.", nil
		}
		out, err := b.dialog.Stop(ctx, chatID)
		return out.Message, err

	case "/status":
		if !known {
			return "You have no notifications configured. Send /configure to set them up.", nil
		}
		return subscriber.Summary(cur), nil
	}

	if !known {
		out, err := b.dialog.Configure(ctx, chatID)
		return greeting + "\n" + out.Message, err
	}
	out, err := b.dialog.Reply(ctx, chatID, text)
	return out.Message, err
}

// commandOf returns the leading bot command, without any @botname suffix,
// or "text" for free text.
func commandOf(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "text"
	}
	cmd := strings.ToLower(fields[0])
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	switch cmd {
	case "/start", "/configure", "/stop", "/status":
		return cmd
	}
	return "text"
}
