// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"go.solispartners.kz/bot/internal/api/google/gemini"
	"go.solispartners.kz/bot/internal/api/google/sheets"
	"go.solispartners.kz/bot/internal/telegram"
)

const (
	leadConvPrefix = "lead:conv:"
	userPrefix     = "user:"

	geminiModel = "gemini-2.0-flash"
)

const systemInstruction = `Ты — ассистент юридической фирмы SOLIS Partners (Казахстан).
Отвечай кратко и по существу на вопросы о праве Республики Казахстан.
Всегда добавляй, что ответ не является юридической консультацией,
и предлагай обратиться к юристам фирмы через команду /lead.`

const greeting = `Здравствуйте! Я бот юридической фирмы SOLIS Partners.

Чем могу помочь?

/services — каталог услуг
/ask — задать правовой вопрос
/lead — оставить заявку на консультацию`

// leadConv is an in-progress lead form, persisted in the store so a restart
// doesn't lose the conversation.
type leadConv struct {
	Step string      `json:"step"` // name, phone, topic, details
	Lead sheets.Lead `json:"lead"`
}

func (e *engine) handleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		e.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Chat.Type == "private":
		e.handleMessage(ctx, u.Message)
	}
}

func (e *engine) handleMessage(ctx context.Context, msg *telegram.Message) {
	e.rememberUser(ctx, msg.From)

	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	if cmd, args, ok := parseCommand(text); ok {
		switch cmd {
		case "start", "help":
			e.deleteConv(ctx, chatID)
			e.reply(ctx, chatID, greeting, telegram.InlineKeyboard{
				{{Text: "📋 Услуги", CallbackData: "svc"}},
				{{Text: "📝 Оставить заявку", CallbackData: "lead"}},
			})
		case "services":
			e.sendCategories(ctx, chatID)
		case "ask":
			if args == "" {
				e.reply(ctx, chatID, "Напишите ваш вопрос после команды, например:\n/ask как зарегистрировать ТОО?", nil)
				return
			}
			e.answerQuestion(ctx, chatID, args)
		case "lead":
			e.startLead(ctx, chatID)
		case "cancel":
			e.deleteConv(ctx, chatID)
			e.reply(ctx, chatID, "Хорошо, отменил. Если что-то понадобится — /start.", nil)
		case "stats":
			e.sendStats(ctx, chatID)
		default:
			e.reply(ctx, chatID, "Не знаю такой команды. Посмотрите /help.", nil)
		}
		return
	}

	if conv := e.loadConv(ctx, chatID); conv != nil {
		e.advanceLead(ctx, msg, conv)
		return
	}

	// Free text outside of a form is a question.
	e.answerQuestion(ctx, chatID, text)
}

func (e *engine) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	if err := e.tg.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		e.logf("Answering callback query: %v", err)
	}

	switch {
	case cb.Data == "svc":
		e.sendCategories(ctx, chatID)
	case strings.HasPrefix(cb.Data, "svc:"):
		e.sendCategory(ctx, chatID, strings.TrimPrefix(cb.Data, "svc:"))
	case cb.Data == "lead":
		e.startLead(ctx, chatID)
	}
}

func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, args, _ = strings.Cut(strings.TrimPrefix(text, "/"), " ")
	// Commands in groups carry the bot username: /services@solisbot.
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args), true
}

func (e *engine) reply(ctx context.Context, chatID int64, text string, kb telegram.InlineKeyboard) {
	if err := e.tg.Send(ctx, telegram.OutgoingMessage{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          "HTML",
		Keyboard:           kb,
		DisableLinkPreview: true,
	}); err != nil {
		e.logf("Sending message to chat %d: %v", chatID, err)
		e.errNotify(ctx, err)
	}
}

func (e *engine) rememberUser(ctx context.Context, u *telegram.User) {
	if u == nil {
		return
	}
	key := fmt.Sprintf("%s%d", userPrefix, u.ID)
	if existing, err := e.store.Get(ctx, key); err != nil || existing != nil {
		return
	}
	b, err := json.Marshal(map[string]any{
		"username":   u.Username,
		"first_name": u.FirstName,
		"first_seen": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, b); err != nil {
		e.logf("Remembering user %d: %v", u.ID, err)
	}
}

// Catalog.

func (e *engine) sendCategories(ctx context.Context, chatID int64) {
	if e.sheetsc == nil {
		e.reply(ctx, chatID, "Каталог услуг временно недоступен. Напишите нам: /lead.", nil)
		return
	}
	services, err := e.sheetsc.Catalog(ctx)
	if err != nil {
		e.logf("Reading catalog: %v", err)
		e.errNotify(ctx, err)
		e.reply(ctx, chatID, "Не получилось загрузить каталог, попробуйте позже.", nil)
		return
	}

	var kb telegram.InlineKeyboard
	seen := make(map[string]bool)
	for _, s := range services {
		if seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		kb = append(kb, []telegram.Button{{Text: s.Category, CallbackData: "svc:" + s.Category}})
	}
	if len(kb) == 0 {
		e.reply(ctx, chatID, "Каталог пока пуст.", nil)
		return
	}
	e.reply(ctx, chatID, "Выберите направление:", kb)
}

func (e *engine) sendCategory(ctx context.Context, chatID int64, category string) {
	if e.sheetsc == nil {
		return
	}
	services, err := e.sheetsc.Catalog(ctx)
	if err != nil {
		e.logf("Reading catalog: %v", err)
		e.errNotify(ctx, err)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", html.EscapeString(category))
	var found bool
	for _, s := range services {
		if s.Category != category {
			continue
		}
		found = true
		fmt.Fprintf(&sb, "• <b>%s</b>", html.EscapeString(s.Name))
		if s.Price != "" {
			fmt.Fprintf(&sb, " — %s", html.EscapeString(s.Price))
		}
		sb.WriteString("\n")
		if s.Description != "" {
			fmt.Fprintf(&sb, "  %s\n", html.EscapeString(s.Description))
		}
	}
	if !found {
		e.reply(ctx, chatID, "В этом направлении пока нет услуг.", nil)
		return
	}
	sb.WriteString("\nЧтобы обсудить детали, оставьте заявку: /lead")
	e.reply(ctx, chatID, sb.String(), nil)
}

// Questions.

func (e *engine) answerQuestion(ctx context.Context, chatID int64, question string) {
	if e.geminic == nil {
		e.reply(ctx, chatID, "Сейчас я не могу отвечать на вопросы. Оставьте заявку (/lead), и юристы свяжутся с вами.", nil)
		return
	}

	resp, err := e.geminic.GenerateContent(ctx, geminiModel, gemini.GenerateContentParams{
		Contents: []*gemini.Content{
			{Parts: []*gemini.Part{{Text: question}}, Role: "user"},
		},
		SystemInstruction: &gemini.Content{
			Parts: []*gemini.Part{{Text: systemInstruction}},
		},
	})
	if err != nil {
		e.logf("Generating answer: %v", err)
		e.errNotify(ctx, err)
		e.reply(ctx, chatID, "Не получилось ответить на вопрос, попробуйте позже.", nil)
		return
	}

	answer := resp.Text()
	if answer == "" {
		e.reply(ctx, chatID, "Я не смог составить ответ. Попробуйте переформулировать вопрос или оставьте заявку: /lead.", nil)
		return
	}
	// Model output is untrusted, send it as plain text.
	if err := e.tg.Send(ctx, telegram.OutgoingMessage{
		ChatID:             chatID,
		Text:               answer,
		DisableLinkPreview: true,
	}); err != nil {
		e.logf("Sending answer to chat %d: %v", chatID, err)
		e.errNotify(ctx, err)
	}
}

// Lead form.

func (e *engine) startLead(ctx context.Context, chatID int64) {
	conv := &leadConv{Step: "name"}
	e.saveConv(ctx, chatID, conv)
	e.reply(ctx, chatID, "Как к вам обращаться? (/cancel — отменить)", nil)
}

func (e *engine) advanceLead(ctx context.Context, msg *telegram.Message, conv *leadConv) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch conv.Step {
	case "name":
		if text == "" {
			e.reply(ctx, chatID, "Напишите, пожалуйста, ваше имя.", nil)
			return
		}
		conv.Lead.Name = text
		conv.Step = "phone"
		e.saveConv(ctx, chatID, conv)
		e.reply(ctx, chatID, "Укажите номер телефона для связи.", nil)
	case "phone":
		if !looksLikePhone(text) {
			e.reply(ctx, chatID, "Это не похоже на номер телефона. Например: +7 701 000 00 00.", nil)
			return
		}
		conv.Lead.Phone = text
		conv.Step = "topic"
		e.saveConv(ctx, chatID, conv)
		e.reply(ctx, chatID, "Коротко: по какому вопросу нужна консультация?", nil)
	case "topic":
		if text == "" {
			e.reply(ctx, chatID, "Напишите тему обращения.", nil)
			return
		}
		conv.Lead.Topic = text
		conv.Step = "details"
		e.saveConv(ctx, chatID, conv)
		e.reply(ctx, chatID, "Опишите ситуацию подробнее (или напишите «-», чтобы пропустить).", nil)
	case "details":
		if text != "-" {
			conv.Lead.Details = text
		}
		e.finishLead(ctx, msg, conv)
	default:
		e.deleteConv(ctx, chatID)
	}
}

func (e *engine) finishLead(ctx context.Context, msg *telegram.Message, conv *leadConv) {
	chatID := msg.Chat.ID

	conv.Lead.Time = time.Now().UTC()
	conv.Lead.UserID = chatID
	if msg.From != nil {
		conv.Lead.Username = msg.From.Username
	}

	if e.sheetsc != nil {
		if err := e.sheetsc.AppendLead(ctx, conv.Lead); err != nil {
			e.logf("Appending lead: %v", err)
			e.errNotify(ctx, err)
		}
	} else {
		e.logf("Lead from %d dropped to log only, sheets are not configured: %+v", chatID, conv.Lead)
	}
	e.deleteConv(ctx, chatID)

	e.reply(ctx, chatID, "Спасибо! Заявка принята, юристы свяжутся с вами в рабочее время.", nil)

	if e.adminChatID != 0 {
		e.reply(ctx, e.adminChatID, fmt.Sprintf(
			"📝 <b>Новая заявка</b>\nИмя: %s\nТелефон: %s\nТема: %s\nДетали: %s\nTelegram: @%s (%d)",
			html.EscapeString(conv.Lead.Name),
			html.EscapeString(conv.Lead.Phone),
			html.EscapeString(conv.Lead.Topic),
			html.EscapeString(conv.Lead.Details),
			html.EscapeString(conv.Lead.Username),
			chatID,
		), nil)
	}
}

func looksLikePhone(s string) bool {
	var digits int
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}

func (e *engine) loadConv(ctx context.Context, chatID int64) *leadConv {
	b, err := e.store.Get(ctx, fmt.Sprintf("%s%d", leadConvPrefix, chatID))
	if err != nil || b == nil {
		return nil
	}
	var conv leadConv
	if err := json.Unmarshal(b, &conv); err != nil {
		return nil
	}
	return &conv
}

func (e *engine) saveConv(ctx context.Context, chatID int64, conv *leadConv) {
	b, err := json.Marshal(conv)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, fmt.Sprintf("%s%d", leadConvPrefix, chatID), b); err != nil {
		e.logf("Saving lead conversation for %d: %v", chatID, err)
	}
}

func (e *engine) deleteConv(ctx context.Context, chatID int64) {
	if err := e.store.Delete(ctx, fmt.Sprintf("%s%d", leadConvPrefix, chatID)); err != nil {
		e.logf("Deleting lead conversation for %d: %v", chatID, err)
	}
}

// Admin.

func (e *engine) sendStats(ctx context.Context, chatID int64) {
	if e.adminChatID == 0 || chatID != e.adminChatID {
		e.reply(ctx, chatID, "Эта команда доступна только администратору.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Статистика</b>\n")
	fmt.Fprintf(&sb, "Аптайм: %s\n", time.Since(e.startTime).Round(time.Second))

	if users, err := e.store.Keys(ctx, userPrefix); err == nil {
		fmt.Fprintf(&sb, "Пользователей: %d\n", len(users))
	}
	if e.sheetsc != nil {
		if n, err := e.sheetsc.LeadCount(ctx); err == nil {
			fmt.Fprintf(&sb, "Заявок в таблице: %d\n", n)
		}
		if n, err := e.sheetsc.PendingCount(ctx); err == nil && n > 0 {
			fmt.Fprintf(&sb, "Заявок в очереди на запись: %d\n", n)
		}
	}
	if e.dig != nil {
		fmt.Fprintf(&sb, "Лент в дайджесте: %d\n", len(e.digestFeeds))
	}

	e.reply(ctx, chatID, sb.String(), nil)
}

// errNotify reports an error to the admin chat, at most once per
// [errNotifyCooldown] for the same message.
func (e *engine) errNotify(ctx context.Context, err error) {
	if e.adminChatID == 0 || err == nil {
		return
	}

	msg := err.Error()
	if e.scrubber != nil {
		msg = e.scrubber.Replace(msg)
	}

	e.errNotifyMu.Lock()
	last, seen := e.errLastNotify[msg]
	if seen && time.Since(last) < errNotifyCooldown {
		e.errNotifyMu.Unlock()
		return
	}
	e.errLastNotify[msg] = time.Now()
	e.errNotifyMu.Unlock()

	if sendErr := e.tg.Send(ctx, telegram.OutgoingMessage{
		ChatID:             e.adminChatID,
		Text:               "⚠️ " + msg,
		DisableLinkPreview: true,
	}); sendErr != nil {
		e.logf("Sending error notification: %v", sendErr)
	}
}
