package alerting

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"mev-alerts/internal/metrics"
	"mev-alerts/internal/telegram"
)

// MessageSender is the part of the Bot API client used for delivery.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
}

// TelegramSink delivers notifications as HTML Telegram messages.
type TelegramSink struct {
	sender MessageSender
	logger zerolog.Logger
}

// NewTelegramSink builds a sink over sender.
func NewTelegramSink(sender MessageSender, logger zerolog.Logger) *TelegramSink {
	return &TelegramSink{
		sender: sender,
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Deliver sends text to the chat, split into several messages when it
// exceeds the Bot API length limit.
func (s *TelegramSink) Deliver(ctx context.Context, address, text string) error {
	parts := splitMessage(text, telegram.MaxMessageLength)
	for i, part := range parts {
		if err := s.sender.SendMessage(ctx, address, part, telegram.ParseModeHTML); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			return err
		}
		s.logger.Debug().Str("chat_id", address).Int("part", i+1).Int("parts", len(parts)).Msg("message part sent")
	}

	metrics.Notifications.WithLabelValues("delivered").Inc()
	s.logger.Info().Str("chat_id", address).Int("parts", len(parts)).Msg("notification delivered (Telegram)")
	return nil
}

// splitMessage cuts text into chunks of at most limit bytes, breaking on
// line boundaries. A single overlong line is hard-wrapped at a safe cut.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := safeCut(line, limit)
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()
	return parts
}

// safeCut returns the largest index <= limit at which line can be split
// without breaking a UTF-8 sequence, an HTML entity or a tag.
func safeCut(line string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}

	head := line[:cut]
	if amp := strings.LastIndexByte(head, '&'); amp > 0 && !strings.Contains(head[amp:], ";") {
		cut = amp
	}
	if lt := strings.LastIndexByte(line[:cut], '<'); lt > 0 && !strings.Contains(line[lt:cut], ">") {
		cut = lt
	}

	if cut == 0 {
		// Nothing safe before limit; fall back to the rune boundary.
		cut = limit
		for cut > 1 && !utf8.RuneStart(line[cut]) {
			cut--
		}
	}
	return cut
}

var _ Sink = (*TelegramSink)(nil)
