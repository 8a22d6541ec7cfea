package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"matchchat/backend/internal/chathub"
	"matchchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Sender is the part of *tgbotapi.BotAPI the clients need.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ConnID is the hub connection id of a Telegram chat.
func ConnID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// Client реалізує інтерфейс chathub.Client
type Client struct {
	ChatID int64
	Send   chan models.Notification
	Bot    Sender
	Texts  chathub.Texts
	Lang   string

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(chatID int64, bot Sender, texts chathub.Texts, lang string, sendBuffer int) *Client {
	return &Client{
		ChatID: chatID,
		Send:   make(chan models.Notification, sendBuffer),
		Bot:    bot,
		Texts:  texts,
		Lang:   lang,
		done:   make(chan struct{}),
	}
}

func (c *Client) GetUserID() string                           { return ConnID(c.ChatID) }
func (c *Client) GetSendChannel() chan<- models.Notification { return c.Send }

// Run запускає 'write pump'. 'Read pump' обробляється централізовано в BotService.
func (c *Client) Run() {
	go c.writePump()
}

// Close закриває Send канал
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Done is closed when the write pump has flushed every notification.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writePump() {
	defer close(c.done)

	for n := range c.Send {
		text := RenderNotification(c.Texts, c.Lang, n)
		if text == "" {
			continue
		}
		if _, err := c.Bot.Send(tgbotapi.NewMessage(c.ChatID, text)); err != nil {
			log.Warn().Err(err).Int64("chatId", c.ChatID).Str("event", n.Event).Msg("failed to send telegram message")
		}
	}
}

// RenderNotification turns a hub notification into chat text. Events with
// no useful chat representation render as "".
func RenderNotification(texts chathub.Texts, lang string, n models.Notification) string {
	switch d := n.Data.(type) {
	case models.MessagePayload:
		return d.Message
	case models.PreferencesSetPayload:
		return d.Message
	case models.WaitingPayload:
		return d.Message
	case models.PartnerGonePayload:
		return d.Message
	case models.MatchFoundPayload:
		return fmt.Sprintf(texts.GetString(lang, "tg_match_partner"), d.Message, d.Partner.Name, d.Partner.Gender)
	case models.AlreadyMatchedPayload:
		return fmt.Sprintf(texts.GetString(lang, "tg_already_matched"), d.Partner.Name)
	case models.WaitingCountPayload:
		return fmt.Sprintf(texts.GetString(lang, "tg_waiting_count"), d.Count)
	case models.Message:
		if d.IsOwnMessage {
			return ""
		}
		return d.SenderName + ": " + d.Text
	}
	// connected and waitingUpdate are too chatty for a bot.
	return ""
}
