// Package telegram handles the integration with the Telegram Bot API.
// It is responsible for receiving updates from Telegram, translating them
// into hub events, and rendering hub notifications back as chat messages.
package telegram

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"matchchat/backend/internal/chathub"
	"matchchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// BotService is responsible for receiving Telegram updates and routing them to the hub.
type BotService struct {
	BotAPI     *tgbotapi.BotAPI
	Sender     Sender
	Hub        *chathub.ManagerService
	Texts      chathub.Texts
	Lang       string
	SendBuffer int

	mu      sync.Mutex
	clients map[int64]*Client
}

// NewBotService creates a new BotService instance.
func NewBotService(token string, hub *chathub.ManagerService, texts chathub.Texts, lang string, sendBuffer int) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Info().Str("account", bot.Self.UserName).Msg("telegram bot authorized")

	s := newBotService(bot, hub, texts, lang, sendBuffer)
	s.BotAPI = bot
	return s, nil
}

func newBotService(sender Sender, hub *chathub.ManagerService, texts chathub.Texts, lang string, sendBuffer int) *BotService {
	return &BotService{
		Sender:     sender,
		Hub:        hub,
		Texts:      texts,
		Lang:       lang,
		SendBuffer: sendBuffer,
		clients:    make(map[int64]*Client),
	}
}

// Run long-polls Telegram until ctx is cancelled.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	log.Info().Msg("telegram bot started")

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			log.Info().Msg("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			s.HandleText(update.Message.Chat.ID, extractMessageContent(update.Message))
		}
	}
}

// extractMessageContent uniformly extracts text or a caption from a message.
func extractMessageContent(msg *tgbotapi.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// HandleText processes one incoming chat message.
func (s *BotService) HandleText(chatID int64, text string) {
	cmd := parseCommand(text)

	switch cmd.kind {
	case commandIgnore:
		return
	case commandHelp:
		s.reply(chatID, s.Texts.GetString(s.Lang, "tg_help"))
	case commandStop:
		if client, ok := s.detach(chatID); ok {
			s.Hub.Unregister(client)
		}
		s.reply(chatID, s.Texts.GetString(s.Lang, "tg_stopped"))
	case commandEvent:
		client, ok := s.clientFor(chatID)
		if !ok {
			return
		}
		s.Hub.Submit(models.InboundEvent{ConnID: client.GetUserID(), Event: cmd.event, Data: cmd.data})
	}
}

// clientFor returns the hub client of chatID, registering a new one on
// first contact.
func (s *BotService) clientFor(chatID int64) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[chatID]; ok {
		select {
		case <-c.Done():
			// Closed by the hub (shutdown); start over.
		default:
			return c, true
		}
	}

	c := NewClient(chatID, s.Sender, s.Texts, s.Lang, s.SendBuffer)
	if !s.Hub.Register(c) {
		return nil, false
	}
	c.Run()
	s.clients[chatID] = c
	return c, true
}

func (s *BotService) detach(chatID int64) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[chatID]
	if ok {
		delete(s.clients, chatID)
	}
	return c, ok
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.Sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Warn().Err(err).Int64("chatId", chatID).Msg("failed to send telegram reply")
	}
}

type commandKind int

const (
	commandIgnore commandKind = iota
	commandHelp
	commandStop
	commandEvent
)

type command struct {
	kind  commandKind
	event string
	data  json.RawMessage
}

// parseCommand maps chat text onto a hub event. Anything that is not a
// command is a chat message.
func parseCommand(text string) command {
	text = strings.TrimSpace(text)
	if text == "" {
		return command{kind: commandIgnore}
	}
	if !strings.HasPrefix(text, "/") {
		data, _ := json.Marshal(models.SendMessagePayload{Message: text})
		return command{kind: commandEvent, event: models.EventSendMessage, data: data}
	}

	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	args := fields[1:]

	switch strings.ToLower(name) {
	case "search":
		var p models.PreferencesPayload
		if len(args) > 0 {
			p.Gender = strings.ToLower(args[0])
		}
		if len(args) > 1 {
			p.MatchPreference = strings.ToLower(args[1])
		}
		data, _ := json.Marshal(p)
		return command{kind: commandEvent, event: models.EventSetPreferences, data: data}
	case "next":
		return command{kind: commandEvent, event: models.EventSkipMatch}
	case "rematch":
		return command{kind: commandEvent, event: models.EventRematch}
	case "count":
		return command{kind: commandEvent, event: models.EventGetWaitingCount}
	case "stop":
		return command{kind: commandStop}
	}
	return command{kind: commandHelp}
}
