package bot

import (
	"ArtBot/core"
	"ArtBot/i18n"
	"ArtBot/lib/sl"
	"ArtBot/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// TgBot receives webhook updates from Telegram, routes commands and
// callbacks, and implements the outbound transport for the pipeline.
type TgBot struct {
	conf    *core.Config
	log     *slog.Logger
	api     *tgbotapi.BotAPI
	users   storage.UserStorage
	loc     *i18n.Localizer
	prompts core.PromptService
	srv     *http.Server
}

func NewTgBot(conf *core.Config, log *slog.Logger, users storage.UserStorage, loc *i18n.Localizer) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.Telegram.ApiKey)
	if err != nil {
		return nil, err
	}

	return &TgBot{
		conf:  conf,
		log:   log.With(sl.Module("bot")),
		api:   api,
		users: users,
		loc:   loc,
	}, nil
}

// SetPromptService sets the handler for free-text prompts
func (t *TgBot) SetPromptService(prompts core.PromptService) {
	t.prompts = prompts
}

func (t *TgBot) Start() error {
	if t.conf.Telegram.WebhookURL != "" {
		link := t.conf.Telegram.WebhookURL + t.conf.Telegram.WebhookPath
		if _, err := t.api.SetWebhook(tgbotapi.NewWebhook(link)); err != nil {
			return fmt.Errorf("registering webhook: %w", err)
		}
		t.log.Info("webhook registered", slog.String("url", link))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(t.conf.Telegram.WebhookPath, t.handleWebhook)
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ArtBot is running!")
	})

	t.srv = &http.Server{
		Addr:    t.conf.Telegram.ListenAddress,
		Handler: router,
	}
	t.log.Info("listening", slog.String("addr", t.conf.Telegram.ListenAddress))
	err := t.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (t *TgBot) Stop() {
	if t.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.srv.Shutdown(ctx); err != nil {
		t.log.Error("shutting down server", sl.Err(err))
	}
}

// handleWebhook always acknowledges with 200 so the platform does not
// retry-storm the same event, whatever happens during dispatch.
func (t *TgBot) handleWebhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		t.log.Warn("decoding update", sl.Err(err))
		c.String(http.StatusOK, "OK")
		return
	}
	t.dispatch(&update)
	c.String(http.StatusOK, "OK")
}

func (t *TgBot) dispatch(update *tgbotapi.Update) {
	if update.CallbackQuery != nil {
		t.handleCallback(update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil || update.Message.Text == "" {
		return
	}

	incoming := update.Message
	chatId := incoming.Chat.ID
	userId := int64(incoming.From.ID)
	text := incoming.Text

	// prompts in group chats must address the bot, commands pass through
	if !strings.HasPrefix(text, "/") && !incoming.Chat.IsPrivate() && !t.isMentioned(text) {
		return
	}

	logText := text
	if len(logText) > 50 {
		logText = logText[:50] + "..."
	}
	t.log.With(
		sl.User(userId),
		slog.String("text", logText),
	).Info("incoming message")

	switch {
	case strings.HasPrefix(text, "/start"):
		t.handleStart(chatId, userId)
	case strings.HasPrefix(text, "/credits"):
		t.handleCredits(chatId, userId)
	default:
		t.handlePrompt(chatId, userId, t.stripMention(text))
	}
}

// detect if we are mentioned in the message
func (t *TgBot) isMentioned(text string) bool {
	if t.conf.Telegram.Username == "" {
		return false
	}
	return strings.Contains(text, "@"+t.conf.Telegram.Username)
}

// stripMention removes the bot's @-mention so it never leaks into the
// generation prompt.
func (t *TgBot) stripMention(text string) string {
	if t.conf.Telegram.Username == "" {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "@"+t.conf.Telegram.Username, ""))
}

func (t *TgBot) handleStart(chatId, userId int64) {
	lang := t.conf.DefaultLanguage
	user, err := t.users.GetUser(userId)
	if err != nil {
		t.log.Error("fetching user", sl.Err(err))
		t.plainResponse(chatId, t.loc.Get(lang, "error_account"))
		return
	}
	if user == nil {
		user, err = t.users.CreateUser(userId, t.conf.DefaultCredits, lang)
		if err != nil {
			t.log.Error("creating user", sl.Err(err))
			t.plainResponse(chatId, t.loc.Get(lang, "error_account"))
			return
		}
		welcome := fmt.Sprintf(t.loc.Get(user.Language, "welcome_created"), user.Credits)
		t.plainResponse(chatId, welcome)
	}
	t.sendMenu(chatId, user.Language)
}

func (t *TgBot) handleCredits(chatId, userId int64) {
	lang := t.conf.DefaultLanguage
	user, err := t.users.GetUser(userId)
	if err == nil && user == nil {
		user, err = t.users.CreateUser(userId, t.conf.DefaultCredits, lang)
	}
	if err != nil || user == nil {
		if err != nil {
			t.log.Error("fetching user", sl.Err(err))
		}
		t.plainResponse(chatId, t.loc.Get(lang, "error_account"))
		return
	}
	t.plainResponse(chatId, fmt.Sprintf(t.loc.Get(user.Language, "credits_balance"), user.Credits))
}

// handlePrompt sends the generating notice, hands the text off to the
// pipeline and keeps an upload indicator running until it finishes. The
// webhook handler has already returned by the time the generation completes.
func (t *TgBot) handlePrompt(chatId, userId int64, prompt string) {
	t.plainResponse(chatId, t.loc.Get(t.userLanguage(userId), "generating"))

	done := make(chan struct{})

	go func() {
		t.sendChatAction(chatId, "upload_photo")
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sendChatAction(chatId, "upload_photo")
			case <-done:
				return
			}
		}
	}()

	go func() {
		defer close(done)
		t.prompts.HandlePrompt(chatId, userId, prompt)
	}()
}

func (t *TgBot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.From == nil {
		return
	}
	chatId := callback.Message.Chat.ID
	userId := int64(callback.From.ID)
	lang := t.userLanguage(userId)

	switch callback.Data {
	case "prompt_text":
		t.plainResponse(chatId, t.loc.Get(lang, "ask_prompt_text"))
	case "prompt_photo":
		t.plainResponse(chatId, t.loc.Get(lang, "ask_prompt_photo"))
	case "check_credits":
		t.handleCheckCredits(chatId, userId)
	case "buy_credits":
		t.plainResponse(chatId, t.loc.Get(lang, "buy_soon"))
	case "about_bot":
		t.plainResponse(chatId, t.loc.Get(lang, "about"))
	}

	if _, err := t.api.AnswerCallbackQuery(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		t.log.Error("answering callback", sl.Err(err))
	}
}

func (t *TgBot) handleCheckCredits(chatId, userId int64) {
	lang := t.conf.DefaultLanguage
	user, err := t.users.GetUser(userId)
	if err == nil && user == nil {
		user, err = t.users.CreateUser(userId, t.conf.DefaultCredits, lang)
	}
	if err != nil || user == nil {
		if err != nil {
			t.log.Error("fetching user", sl.Err(err))
		}
		t.plainResponse(chatId, t.loc.Get(lang, "error_account"))
		return
	}
	t.plainResponse(chatId, fmt.Sprintf(t.loc.Get(user.Language, "callback_credits"), user.Credits))
}

func (t *TgBot) userLanguage(userId int64) string {
	user, err := t.users.GetUser(userId)
	if err != nil || user == nil || user.Language == "" {
		return t.conf.DefaultLanguage
	}
	return user.Language
}

// SendText implements core.Transport
func (t *TgBot) SendText(chatId int64, text string) error {
	msg := tgbotapi.NewMessage(chatId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := t.api.Send(msg)
	return err
}

// SendPhoto implements core.Transport. Inline bytes are uploaded, a bare
// URL is shared for Telegram to fetch itself.
func (t *TgBot) SendPhoto(chatId int64, photo core.Photo) error {
	if len(photo.Bytes) > 0 {
		upload := tgbotapi.NewPhotoUpload(chatId, tgbotapi.FileBytes{
			Name:  attachmentName(photo.MimeType),
			Bytes: photo.Bytes,
		})
		upload.Caption = photo.Caption
		_, err := t.api.Send(upload)
		return err
	}
	share := tgbotapi.NewPhotoShare(chatId, photo.URL)
	share.Caption = photo.Caption
	_, err := t.api.Send(share)
	return err
}

func (t *TgBot) sendMenu(chatId int64, lang string) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.loc.Get(lang, "menu_prompt_text"), "prompt_text"),
			tgbotapi.NewInlineKeyboardButtonData(t.loc.Get(lang, "menu_prompt_photo"), "prompt_photo"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.loc.Get(lang, "menu_credits"), "check_credits"),
			tgbotapi.NewInlineKeyboardButtonData(t.loc.Get(lang, "menu_buy"), "buy_credits"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.loc.Get(lang, "menu_about"), "about_bot"),
		),
	)
	msg := tgbotapi.NewMessage(chatId, t.loc.Get(lang, "menu_title"))
	msg.ReplyMarkup = keyboard
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending menu", sl.Err(err))
	}
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	if err := t.SendText(chatId, text); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}

func (t *TgBot) sendChatAction(chatId int64, action string) {
	msg := tgbotapi.NewChatAction(chatId, action)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending chat action", sl.Err(err))
	}
}

func attachmentName(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "image.jpg"
	case "image/webp":
		return "image.webp"
	case "image/gif":
		return "image.gif"
	}
	return "image.png"
}
