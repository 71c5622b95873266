package telegram

import (
	"context"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot only opens the Mini App; all authenticated work happens in httpapi.
type Bot struct {
	bot        *tgbotapi.BotAPI
	miniAppURL string
	log        *zap.Logger
}

// NewBot авторизуется в Bot API через client (прямой или через прокси).
func NewBot(token string, client *http.Client, miniAppURL string, log *zap.Logger) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}

	bot.Debug = false
	log.Info("bot authorized", zap.String("username", bot.Self.UserName))

	return &Bot{
		bot:        bot,
		miniAppURL: miniAppURL,
		log:        log,
	}, nil
}

const (
	textStart   = "Привет! Нажми кнопку ниже, чтобы открыть приложение."
	textNoApp   = "Привет! Mini App пока не настроен."
	textUnknown = "Я понимаю только /start."
	buttonOpen  = "Открыть приложение"
)

// Start крутит главный цикл до отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleMessage(update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	reply := buildReply(msg.Chat.ID, msg.IsCommand(), msg.Command(), b.miniAppURL)
	if _, err := b.bot.Send(reply); err != nil {
		b.log.Warn("send failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func buildReply(chatID int64, isCommand bool, command string, miniAppURL string) tgbotapi.MessageConfig {
	if !isCommand || command != "start" {
		return tgbotapi.NewMessage(chatID, textUnknown)
	}
	if miniAppURL == "" {
		return tgbotapi.NewMessage(chatID, textNoApp)
	}

	msg := tgbotapi.NewMessage(chatID, textStart)
	msg.ReplyMarkup = webAppMarkup(miniAppURL)
	return msg
}

// tgbotapi v5 has no web_app button type, so the markup is declared here.
type webAppInfo struct {
	URL string `json:"url"`
}

type inlineKeyboardButton struct {
	Text   string      `json:"text"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

func webAppMarkup(url string) inlineKeyboardMarkup {
	return inlineKeyboardMarkup{
		InlineKeyboard: [][]inlineKeyboardButton{
			{
				{Text: buttonOpen, WebApp: &webAppInfo{URL: url}},
			},
		},
	}
}
