package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relay_bot/internal/model"
	"relay_bot/internal/render"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// TelegramTransport sends rendered payloads through the Telegram Bot API.
type TelegramTransport struct {
	api telegramSender
}

// NewTelegramTransport wraps a Bot API client as a Transport.
func NewTelegramTransport(api telegramSender) *TelegramTransport {
	return &TelegramTransport{api: api}
}

// Send delivers the payload as a plain message, a single captioned media
// item, or a media group, depending on the event's attachments. Bot API
// errors are classified into TransportError kinds.
func (t *TelegramTransport) Send(ctx context.Context, channelID int64, content render.Rendered) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &TransportError{Kind: KindTransientNetwork, Err: err}
	}

	switch len(content.Media) {
	case 0:
		return t.sendText(channelID, content.Text)
	case 1:
		return t.sendSingleMedia(channelID, content.Media[0], content.Text)
	default:
		return t.sendMediaGroup(channelID, content.Media, content.Text)
	}
}

func (t *TelegramTransport) sendText(channelID int64, text string) (int64, error) {
	msg := tgbotapi.NewMessage(channelID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, classify(err)
	}
	return int64(sent.MessageID), nil
}

func (t *TelegramTransport) sendSingleMedia(channelID int64, ref model.MediaRef, caption string) (int64, error) {
	file := tgbotapi.FileID(ref.FileID)

	var cfg tgbotapi.Chattable
	switch ref.Kind {
	case model.MediaPhoto:
		c := tgbotapi.NewPhoto(channelID, file)
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	case model.MediaVideo:
		c := tgbotapi.NewVideo(channelID, file)
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	case model.MediaAudio:
		c := tgbotapi.NewAudio(channelID, file)
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	default:
		c := tgbotapi.NewDocument(channelID, file)
		c.Caption = caption
		c.ParseMode = tgbotapi.ModeHTML
		cfg = c
	}

	sent, err := t.api.Send(cfg)
	if err != nil {
		return 0, classify(err)
	}
	return int64(sent.MessageID), nil
}

func (t *TelegramTransport) sendMediaGroup(channelID int64, refs []model.MediaRef, caption string) (int64, error) {
	media := make([]interface{}, 0, len(refs))
	for i, ref := range refs {
		// Telegram renders the caption of the first item as the group caption.
		c := ""
		if i == 0 {
			c = caption
		}
		media = append(media, inputMedia(ref, c))
	}

	sent, err := t.api.SendMediaGroup(tgbotapi.NewMediaGroup(channelID, media))
	if err != nil {
		return 0, classify(err)
	}
	if len(sent) == 0 {
		return 0, &TransportError{Kind: KindTransientNetwork, Err: fmt.Errorf("empty media group response")}
	}
	return int64(sent[0].MessageID), nil
}

func inputMedia(ref model.MediaRef, caption string) interface{} {
	file := tgbotapi.FileID(ref.FileID)
	switch ref.Kind {
	case model.MediaPhoto:
		m := tgbotapi.NewInputMediaPhoto(file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		return m
	case model.MediaVideo:
		m := tgbotapi.NewInputMediaVideo(file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		return m
	case model.MediaAudio:
		m := tgbotapi.NewInputMediaAudio(file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		return m
	default:
		m := tgbotapi.NewInputMediaDocument(file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		return m
	}
}

// classify maps a Bot API error to a TransportError kind. HTTP 429 with a
// retry_after parameter is a rate limit, 4xx is a permanent rejection,
// everything else (5xx, network faults) is transient.
func classify(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		switch {
		case tgErr.Code == http.StatusTooManyRequests:
			return &TransportError{
				Kind:       KindRateLimited,
				RetryAfter: time.Duration(tgErr.RetryAfter) * time.Second,
				Err:        err,
			}
		case tgErr.Code >= 400 && tgErr.Code < 500:
			return &TransportError{Kind: KindPermanentRejection, Err: err}
		}
	}
	return &TransportError{Kind: KindTransientNetwork, Err: err}
}
