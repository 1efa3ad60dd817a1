// Package telegram serves the planner over a Telegram webhook.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"nutrition-planner/internal/config"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/planner"
)

const (
	requestTimeout = 2 * time.Minute
	helpText       = "🥗 *Nutrition Planner*\n\nSend `/plan <diet> <goal>`, for example `/plan vegetarian weight-loss`.\nTap a plan to tell me which one you picked."
)

// Planner is the part of planner.Planner the bot uses.
type Planner interface {
	Recommend(ctx context.Context, req planner.Request) (*planner.Recommendation, error)
	Select(ctx context.Context, sel planner.Selection) (*planner.SelectionResult, error)
}

// RunStats feeds the admin /metrics report.
type RunStats interface {
	GetDailyRuns(ctx context.Context, days int) ([]metrics.DailyRuns, error)
}

// Bot wraps the Telegram API and the planner.
type Bot struct {
	api      *tgbotapi.BotAPI
	planner  Planner
	runs     RunStats
	cfg      config.TelegramConfig
	modelDir string
	logger   zerolog.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// NewBot initializes the Telegram API client and registers the webhook.
func NewBot(cfg config.TelegramConfig, p Planner, runs RunStats, modelDir string, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info().Str("account", api.Self.UserName).Msg("authorized telegram bot")

	wh, err := tgbotapi.NewWebhook(cfg.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.WebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.WebhookURL, err)
	}
	logger.Info().Str("description", resp.Description).Msg("webhook registered")

	return &Bot{
		api:      api,
		planner:  p,
		runs:     runs,
		cfg:      cfg,
		modelDir: modelDir,
		logger:   logger,
		limiters: make(map[int64]*rate.Limiter),
	}, nil
}

// Handler returns the webhook endpoint.
func (b *Bot) Handler() http.Handler {
	return http.HandlerFunc(b.handleWebhook)
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to parse update")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	switch {
	case update.CallbackQuery != nil:
		if !b.allowed(update.CallbackQuery.From.ID) {
			return
		}
		go b.handleCallbackQuery(update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		if !b.allowed(update.Message.From.ID) {
			b.logger.Warn().Int64("user_id", update.Message.From.ID).Str("username", update.Message.From.UserName).Msg("unauthorized access attempt")
			return
		}
		go b.processMessage(update.Message)
	}
}

// allowed reports whether userID may use the bot. An empty list admits everyone.
func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// throttle allows a short burst of selections per chat, then one every ten seconds.
func (b *Bot) throttle(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Every(10*time.Second), 3)
		b.limiters[chatID] = l
	}
	return l.Allow()
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.send(msg.Chat.ID, helpText, nil)
	case "metrics":
		if b.cfg.AdminUserID == 0 || msg.From.ID != b.cfg.AdminUserID {
			b.send(msg.Chat.ID, "⛔ *Access Denied*: Admin only.", nil)
			return
		}
		b.handleMetricsCommand(msg.Chat.ID)
	case "plan":
		b.handlePlanCommand(msg)
	default:
		b.send(msg.Chat.ID, helpText, nil)
	}
}

func (b *Bot) handlePlanCommand(msg *tgbotapi.Message) {
	diet, goal, ok := parsePlanCommand(msg.CommandArguments())
	if !ok {
		b.send(msg.Chat.ID, "Usage: `/plan <diet> <goal>`", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rec, err := b.planner.Recommend(ctx, planner.Request{
		Name: msg.From.FirstName,
		Diet: []string{diet},
		Goal: goal,
	})
	if err != nil {
		b.send(msg.Chat.ID, fmt.Sprintf("❌ %s", err), nil)
		return
	}

	keyboard := selectionKeyboard(rec, diet, goal)
	if len(keyboard.InlineKeyboard) == 0 {
		b.send(msg.Chat.ID, formatPlansMarkdown(rec), nil)
		return
	}
	b.send(msg.Chat.ID, formatPlansMarkdown(rec), &keyboard)
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	id, diet, goal, ok := parseSelectionData(query.Data)
	if !ok || query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID

	if !b.throttle(chatID) {
		b.api.Request(tgbotapi.NewCallback(query.ID, "Slow down, try again in a few seconds."))
		return
	}
	b.api.Request(tgbotapi.NewCallback(query.ID, "Saving your choice..."))

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	res, err := b.planner.Select(ctx, planner.Selection{
		Name:           query.From.FirstName,
		Diet:           []string{diet},
		Goal:           goal,
		SelectedPlanID: &id,
	})
	switch {
	case err == nil:
		b.send(chatID, fmt.Sprintf("✅ Plan %d saved. Model version: %d", id, res.ModelVersion), nil)
	case res != nil && res.Saved:
		b.logger.Warn().Err(err).Int("plan_id", id).Msg("selection saved but retrain failed")
		b.send(chatID, fmt.Sprintf("✅ Plan %d saved. The model will catch up later.", id), nil)
	default:
		b.logger.Error().Err(err).Int("plan_id", id).Msg("selection failed")
		b.send(chatID, "❌ Could not save your selection.", nil)
	}
}

func (b *Bot) handleMetricsCommand(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var days []metrics.DailyRuns
	if b.runs != nil {
		var err error
		if days, err = b.runs.GetDailyRuns(ctx, 7); err != nil {
			b.send(chatID, "❌ Error fetching metrics.", nil)
			return
		}
	}
	b.send(chatID, formatMetricsMarkdown(days, metrics.GetSysHealth(b.modelDir)), nil)
}

func (b *Bot) send(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

// parsePlanCommand reads "<diet> <goal>" from the /plan arguments.
func parsePlanCommand(args string) (diet, goal string, ok bool) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// maxCallbackData is Telegram's limit on inline button payloads.
const maxCallbackData = 64

// selectionData encodes "sel|<plan id>|<diet>|<goal>". It reports false when
// the payload would not fit, since a cut payload would log the wrong goal.
func selectionData(id int, diet, goal string) (string, bool) {
	data := fmt.Sprintf("sel|%d|%s|%s", id, diet, goal)
	return data, len(data) <= maxCallbackData
}

func parseSelectionData(data string) (id int, diet, goal string, ok bool) {
	parts := strings.Split(data, "|")
	if len(parts) != 4 || parts[0] != "sel" {
		return 0, "", "", false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || parts[2] == "" || parts[3] == "" {
		return 0, "", "", false
	}
	return id, parts[2], parts[3], true
}

func selectionKeyboard(rec *planner.Recommendation, diet, goal string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rec.Plans))
	for _, p := range rec.Plans {
		data, ok := selectionData(p.ID, diet, goal)
		if !ok {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Pick #%d %s", p.ID, p.Name), data),
		))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func formatPlansMarkdown(rec *planner.Recommendation) string {
	var sb strings.Builder
	sb.WriteString("📋 *Recommended Plans*")
	switch rec.Source {
	case planner.SourceModel:
		sb.WriteString(fmt.Sprintf(" (model v%d)", rec.ModelVersion))
	case planner.SourceRules:
		sb.WriteString(" (rule-based)")
	case planner.SourceDefault:
		sb.WriteString(" (default)")
	}
	sb.WriteString("\n\n")

	for _, p := range rec.Plans {
		sb.WriteString(fmt.Sprintf("*#%d %s* (%.0f%%)\n", p.ID, p.Name, p.Confidence*100))
		sb.WriteString(fmt.Sprintf("• Breakfast: %s\n", p.Meals.Breakfast))
		sb.WriteString(fmt.Sprintf("• Lunch: %s\n", p.Meals.Lunch))
		sb.WriteString(fmt.Sprintf("• Dinner: %s\n", p.Meals.Dinner))
		sb.WriteString(fmt.Sprintf("_%d kcal, P %dg / C %dg / F %dg_\n\n", p.Calories, p.Macros.Protein, p.Macros.Carbs, p.Macros.Fats))
	}
	return sb.String()
}

func formatMetricsMarkdown(days []metrics.DailyRuns, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Training & Health Report*\n\n")

	sb.WriteString("🗓 *Training Runs (7 days)*\n")
	if len(days) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range days {
		sb.WriteString(fmt.Sprintf("• *%s*: %d runs, %d failed, accuracy %.2f\n", d.Date, d.Total, d.Failed, d.MeanAccuracy))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Model Disk: %s\n", health.ModelDiskSize))
	return sb.String()
}
