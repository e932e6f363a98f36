package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"salva/internal/apperr"
	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
	"salva/internal/service"
)

const (
	cbDonePrefix    = "done:"
	cbCancelPrefix  = "cancel:"
	cbConfirmPrefix = "confirm:"
	cbDismiss       = "dismiss"
)

const (
	menuLabelToday = "📋 Aujourd'hui"
	menuLabelSlots = "🕳 Créneaux"
	menuLabelSync  = "🔄 Synchroniser"
	menuLabelHelp  = "ℹ️ Aide"
)

// messenger is the part of the Telegram API the handlers use.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot serves briefs and a few commands over Telegram.
type Bot struct {
	api     *tgbotapi.BotAPI
	out     messenger
	users   *repository.UserRepository
	tasks   *service.TaskService
	briefs  *service.BriefService
	cycle   *service.CycleService
	planner *service.DayPlanner
	log     *logger.Logger
	now     func() time.Time
}

// New connects to Telegram. planner may be nil, which disables /plan.
func New(token string, users *repository.UserRepository, tasks *service.TaskService, briefs *service.BriefService, cycle *service.CycleService, planner *service.DayPlanner, log *logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, users, tasks, briefs, cycle, planner, log)
	b.api = api
	b.log.Info("bot authorized", "account", api.Self.UserName)
	return b, nil
}

func newBot(out messenger, users *repository.UserRepository, tasks *service.TaskService, briefs *service.BriefService, cycle *service.CycleService, planner *service.DayPlanner, log *logger.Logger) *Bot {
	return &Bot{
		out:     out,
		users:   users,
		tasks:   tasks,
		briefs:  briefs,
		cycle:   cycle,
		planner: planner,
		log:     log.With("component", "bot"),
		now:     time.Now,
	}
}

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", "error", err)
			}
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if msg.IsCommand() {
		b.log.Info("command", "chat_id", msg.Chat.ID, "command", msg.Command())
		return b.handleCommand(ctx, msg)
	}
	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}
	return b.sendText(msg.Chat.ID, "Je n'ai pas compris. Tape /help pour la liste des commandes.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg.Chat.ID)
	case "link":
		return b.handleLink(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg.Chat.ID)
	case "slots":
		return b.handleSlots(ctx, msg.Chat.ID)
	case "brief":
		return b.handleBrief(ctx, msg.Chat.ID)
	case "sync":
		return b.handleSync(ctx, msg.Chat.ID)
	case "plan":
		return b.handlePlan(ctx, msg.Chat.ID)
	case "done":
		return b.handleByID(ctx, msg, b.complete)
	case "cancel":
		return b.handleByID(ctx, msg, b.cancel)
	default:
		return b.sendText(msg.Chat.ID, "Commande inconnue. Regarde /help.")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelToday:
		return true, b.handleToday(ctx, msg.Chat.ID)
	case menuLabelSlots:
		return true, b.handleSlots(ctx, msg.Chat.ID)
	case menuLabelSync:
		return true, b.handleSync(ctx, msg.Chat.ID)
	case menuLabelHelp:
		return true, b.handleHelp(msg.Chat.ID)
	default:
		return false, nil
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "toi"
	}
	text := fmt.Sprintf("👋 Bonjour, %s !\n<b>Je garde ton agenda et tes tâches en phase.</b>\n\n", escape(name))

	user, err := b.users.GetByTelegramChat(ctx, msg.Chat.ID)
	switch {
	case err == nil:
		text += fmt.Sprintf("Compte lié : <code>%s</code>\n", escape(user.Email))
	case errors.Is(err, apperr.ErrNotFound):
		text += "Lie ton compte avec /link &lt;email&gt;.\n"
	default:
		return err
	}
	return b.sendText(msg.Chat.ID, text+"\n"+helpText)
}

const helpText = "ℹ️ <b>Commandes</b>\n" +
	"• /link &lt;email&gt; — lier ce chat à ton compte\n" +
	"• /today — tâches du jour\n" +
	"• /slots — créneaux libres du jour\n" +
	"• /brief — résumé du jour\n" +
	"• /sync — synchroniser l'agenda maintenant\n" +
	"• /plan — proposer des tâches pour aujourd'hui\n" +
	"• /done &lt;id&gt; — marquer une tâche faite\n" +
	"• /cancel &lt;id&gt; — annuler une tâche"

func (b *Bot) handleHelp(chatID int64) error {
	return b.sendText(chatID, helpText)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	email := strings.TrimSpace(msg.CommandArguments())
	if email == "" {
		return b.sendText(msg.Chat.ID, "Indique ton email : /link ana@example.com")
	}
	user, err := b.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return b.sendText(msg.Chat.ID, "Aucun compte avec cet email.")
		}
		return err
	}
	if err := b.users.LinkTelegram(ctx, user.ID, msg.Chat.ID); err != nil {
		return err
	}
	b.log.Info("chat linked", "user_id", user.ID, "chat_id", msg.Chat.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Chat lié à <code>%s</code>.", escape(user.Email)))
}

// linkedUser resolves the chat's user, answering the chat itself when there is none.
func (b *Bot) linkedUser(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := b.users.GetByTelegramChat(ctx, chatID)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, b.sendText(chatID, "Ce chat n'est lié à aucun compte. Utilise /link &lt;email&gt;.")
	}
	return nil, err
}

func (b *Bot) handleToday(ctx context.Context, chatID int64) error {
	user, err := b.linkedUser(ctx, chatID)
	if user == nil {
		return err
	}
	tasks, err := b.briefs.Today(ctx, *user, b.now())
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "📭 Rien de prévu aujourd'hui.")
	}

	loc := user.Location()
	var sb strings.Builder
	sb.WriteString("📋 <b>Aujourd'hui</b>\n\n")
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for _, t := range tasks {
		sb.WriteString(formatTask(t, loc))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d %s", t.ID, shortTitle(t.Title, 20)), cbDonePrefix+strconv.FormatUint(uint64(t.ID), 10)),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbCancelPrefix+strconv.FormatUint(uint64(t.ID), 10)),
		))
	}
	return b.sendWithReplyMarkup(chatID, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleSlots(ctx context.Context, chatID int64) error {
	user, err := b.linkedUser(ctx, chatID)
	if user == nil {
		return err
	}
	slots, err := b.briefs.Slots(ctx, *user, b.now())
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return b.sendText(chatID, "🕳 Aucun créneau libre aujourd'hui.")
	}
	var sb strings.Builder
	sb.WriteString("🕳 <b>Créneaux libres</b>\n")
	for _, s := range slots {
		sb.WriteString(fmt.Sprintf("• %s–%s\n", s.Start, s.End))
	}
	return b.sendText(chatID, sb.String())
}

func (b *Bot) handleBrief(ctx context.Context, chatID int64) error {
	user, err := b.linkedUser(ctx, chatID)
	if user == nil {
		return err
	}
	text, err := b.briefs.DailyBrief(ctx, *user, b.now())
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Impossible de préparer le résumé : %s", escape(err.Error())))
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleSync(ctx context.Context, chatID int64) error {
	user, err := b.linkedUser(ctx, chatID)
	if user == nil {
		return err
	}
	report, err := b.cycle.RunUser(ctx, *user)
	if err != nil {
		b.log.Error("manual cycle failed", "user_id", user.ID, "error", err)
		return b.sendText(chatID, fmt.Sprintf("⚠️ Synchronisation interrompue : %s", escape(err.Error())))
	}
	return b.sendText(chatID, formatReport(report))
}

func (b *Bot) handlePlan(ctx context.Context, chatID int64) error {
	if b.planner == nil {
		return b.sendText(chatID, "La planification automatique n'est pas configurée.")
	}
	user, err := b.linkedUser(ctx, chatID)
	if user == nil {
		return err
	}
	res, err := b.planner.PlanDay(ctx, user.ID, b.now())
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("⚠️ Planification impossible : %s", escape(err.Error())))
	}
	if len(res.Created) == 0 {
		return b.sendText(chatID, "🗓 Rien à ajouter aujourd'hui.")
	}
	var sb strings.Builder
	sb.WriteString("🗓 <b>Ajouté à ta journée</b>\n")
	for _, t := range res.Created {
		sb.WriteString(formatTask(t, user.Location()))
	}
	if res.Reasoning != "" {
		sb.WriteString(fmt.Sprintf("\n<i>%s</i>", escape(res.Reasoning)))
	}
	return b.sendText(chatID, sb.String())
}

func (b *Bot) handleByID(ctx context.Context, msg *tgbotapi.Message, action func(context.Context, int64, *model.User, uint) error) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Indique le numéro de la tâche : /%s 12", msg.Command()))
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Le numéro de tâche doit être un nombre.")
	}
	user, err := b.linkedUser(ctx, msg.Chat.ID)
	if user == nil {
		return err
	}
	return action(ctx, msg.Chat.ID, user, uint(id))
}

func (b *Bot) complete(ctx context.Context, chatID int64, user *model.User, id uint) error {
	inst, err := b.tasks.CompleteInstance(ctx, user, id, b.now())
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("✅ «%s» est faite.", escape(inst.Title)))
}

func (b *Bot) cancel(ctx context.Context, chatID int64, user *model.User, id uint) error {
	inst, err := b.tasks.CancelInstance(ctx, user, id)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 «%s» est annulée.", escape(inst.Title)))
}

func (b *Bot) replyError(chatID int64, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return b.sendText(chatID, "Tâche introuvable.")
	case apperr.KindConsistency:
		return b.sendText(chatID, "Cette tâche est déjà terminée ou annulée.")
	case apperr.KindExternal:
		return b.sendText(chatID, "⚠️ L'agenda ne répond pas, réessaie plus tard.")
	default:
		return b.sendText(chatID, fmt.Sprintf("Erreur : %s", escape(err.Error())))
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.out.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", "error", err)
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case strings.HasPrefix(data, cbDonePrefix), strings.HasPrefix(data, cbCancelPrefix):
		return b.askConfirmation(chatID, data)
	case strings.HasPrefix(data, cbConfirmPrefix):
		action := strings.TrimPrefix(data, cbConfirmPrefix)
		user, err := b.linkedUser(ctx, chatID)
		if user == nil {
			return err
		}
		if id, err := parseTaskID(action, cbDonePrefix); err == nil {
			return b.complete(ctx, chatID, user, id)
		}
		if id, err := parseTaskID(action, cbCancelPrefix); err == nil {
			return b.cancel(ctx, chatID, user, id)
		}
		return nil
	default:
		return nil
	}
}

func (b *Bot) askConfirmation(chatID int64, action string) error {
	verb := "Marquer comme faite"
	if strings.HasPrefix(action, cbCancelPrefix) {
		verb = "Annuler"
	}
	id := action[strings.Index(action, ":")+1:]
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Oui", cbConfirmPrefix+action),
		tgbotapi.NewInlineKeyboardButtonData("↩️ Non", cbDismiss),
	))
	return b.sendWithReplyMarkup(chatID, fmt.Sprintf("%s la tâche #%s ?", verb, escape(id)), keyboard)
}

// SendDailyBriefs sends today's brief to every user with a linked chat.
func (b *Bot) SendDailyBriefs(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	sent := 0
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if user.TelegramChatID == nil {
			continue
		}
		text, err := b.briefs.DailyBrief(ctx, user, now)
		if err != nil {
			b.log.Error("build brief", "user_id", user.ID, "error", err)
			continue
		}
		if err := b.sendText(*user.TelegramChatID, text); err != nil {
			b.log.Error("send brief", "user_id", user.ID, "error", err)
			continue
		}
		sent++
	}
	b.log.Info("daily briefs sent", "count", sent)
	return nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.out.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelSlots),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelSync),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func parseTaskID(data, prefix string) (uint, error) {
	if !strings.HasPrefix(data, prefix) {
		return 0, fmt.Errorf("missing prefix %q", prefix)
	}
	value, err := strconv.ParseUint(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func formatTask(t model.TaskInstance, loc *time.Location) string {
	icon := "🟢"
	if t.Origin == model.OriginCalendar {
		icon = "📅"
	}
	line := fmt.Sprintf("%s <code>#%d</code> %s–%s %s\n", icon, t.ID,
		t.ScheduledStart.In(loc).Format("15:04"), t.ScheduledEnd.In(loc).Format("15:04"), escape(t.Title))
	if t.Location != nil && strings.TrimSpace(*t.Location) != "" {
		line += fmt.Sprintf("   📍 %s\n", escape(strings.TrimSpace(*t.Location)))
	}
	return line
}

func formatReport(r *service.CycleReport) string {
	var pulled, pushed, cancelled int
	for _, s := range []*service.SyncResult{r.FirstSync, r.SecondSync} {
		if s == nil {
			continue
		}
		pulled += len(s.Pulled)
		pushed += len(s.Pushed)
		cancelled += len(s.Cancelled)
	}
	matched, created := 0, 0
	if r.Matching != nil {
		matched = r.Matching.Matched
	}
	if r.Materialize != nil {
		created = len(r.Materialize.Created)
	}

	var sb strings.Builder
	sb.WriteString("🔄 <b>Synchronisation terminée</b>\n")
	sb.WriteString(fmt.Sprintf("• %d importé(s) de l'agenda\n", pulled))
	sb.WriteString(fmt.Sprintf("• %d envoyé(s) vers l'agenda\n", pushed))
	sb.WriteString(fmt.Sprintf("• %d annulé(s)\n", cancelled))
	sb.WriteString(fmt.Sprintf("• %d rattaché(s) à une habitude\n", matched))
	sb.WriteString(fmt.Sprintf("• %d planifié(s) depuis les modèles\n", created))
	if failures := r.Failures(); len(failures) > 0 {
		sb.WriteString(fmt.Sprintf("⚠️ %d élément(s) ignoré(s)\n", len(failures)))
	}
	return sb.String()
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
