package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salva/internal/calendar"
	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
	"salva/internal/service"
	"salva/internal/testutil"
)

type sentMessage struct {
	chatID int64
	text   string
	markup interface{}
}

type fakeMessenger struct {
	sent     []sentMessage
	requests int
}

func (f *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, sentMessage{chatID: m.ChatID, text: m.Text, markup: m.ReplyMarkup})
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeMessenger) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeMessenger) last(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// emptyCalendar has no events and accepts every write.
type emptyCalendar struct{}

func (emptyCalendar) Search(context.Context, string, time.Time, time.Time) ([]calendar.RawEvent, error) {
	return nil, nil
}

func (emptyCalendar) CreateEvent(context.Context, string, calendar.NewEvent) (string, error) {
	return calendar.NewUID(), nil
}

func (emptyCalendar) Exists(context.Context, string, string, time.Time, time.Time) (bool, error) {
	return true, nil
}

func (emptyCalendar) Delete(context.Context, string, string, time.Time, time.Time) (bool, error) {
	return true, nil
}

type fixture struct {
	bot       *Bot
	out       *fakeMessenger
	users     *repository.UserRepository
	instances *repository.InstanceRepository
	user      *model.User
}

var now = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	log := logger.NewNop()

	users := repository.NewUserRepository(db)
	templates := repository.NewTemplateRepository(db)
	instances := repository.NewInstanceRepository(db)
	clusters := repository.NewClusterRepository(db)
	sync := service.NewCalendarSync(instances, emptyCalendar{}, "Work", log)
	matcher := service.NewMatcher(instances, templates, repository.NewMatchRepository(db), log)
	materializer := service.NewMaterializer(templates, instances, time.Sunday, log)
	cycle := service.NewCycleService(users, sync, matcher, materializer, "Work", 8, log)

	out := &fakeMessenger{}
	b := newBot(out, users, service.NewTaskService(templates, instances, sync), service.NewBriefService(instances, clusters), cycle, nil, log)
	b.now = func() time.Time { return now }

	user := &model.User{Email: "ana@example.com", Timezone: "UTC"}
	require.NoError(t, users.Create(context.Background(), user))
	return fixture{bot: b, out: out, users: users, instances: instances, user: user}
}

func command(chatID int64, text string) *tgbotapi.Message {
	cmd, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		From:     &tgbotapi.User{ID: chatID, FirstName: "Ana"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func (f fixture) link(t *testing.T, chatID int64) {
	t.Helper()
	require.NoError(t, f.bot.handleMessage(context.Background(), command(chatID, "/link ana@example.com")))
}

func TestLinkThenStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/start")))
	assert.Contains(t, f.out.last(t).text, "/link &lt;email&gt;")

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/link nobody@example.com")))
	assert.Contains(t, f.out.last(t).text, "Aucun compte")

	f.link(t, 42)
	assert.Contains(t, f.out.last(t).text, "Chat lié")

	got, err := f.users.GetByTelegramChat(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, got.ID)

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/start")))
	assert.Contains(t, f.out.last(t).text, "Compte lié : <code>ana@example.com</code>")
}

func TestCommandsRequireLinkedChat(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bot.handleMessage(context.Background(), command(7, "/today")))
	assert.Contains(t, f.out.last(t).text, "n'est lié à aucun compte")
}

func TestTodayListsTasksWithButtons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.link(t, 42)

	inst := &model.TaskInstance{UserID: f.user.ID, Title: "Courses", ScheduledStart: now.Add(8 * time.Hour)}
	require.NoError(t, f.instances.Create(ctx, inst))

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/today")))
	msg := f.out.last(t)
	assert.Contains(t, msg.text, "18:00–19:00 Courses")
	markup, ok := msg.markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "done:1", *markup.InlineKeyboard[0][0].CallbackData)

	require.NoError(t, f.bot.handleMessage(ctx, &tgbotapi.Message{Text: menuLabelSlots, Chat: &tgbotapi.Chat{ID: 42}, From: &tgbotapi.User{ID: 42}}))
	assert.Contains(t, f.out.last(t).text, "• 09:00–18:00")
}

func TestDoneAndCancelCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.link(t, 42)

	a := &model.TaskInstance{UserID: f.user.ID, Title: "Courses", ScheduledStart: now.Add(8 * time.Hour)}
	b := &model.TaskInstance{UserID: f.user.ID, Title: "Banque", ScheduledStart: now.Add(2 * time.Hour)}
	require.NoError(t, f.instances.Create(ctx, a))
	require.NoError(t, f.instances.Create(ctx, b))

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/done")))
	assert.Contains(t, f.out.last(t).text, "/done 12")

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/done abc")))
	assert.Contains(t, f.out.last(t).text, "doit être un nombre")

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/done 999")))
	assert.Contains(t, f.out.last(t).text, "introuvable")

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/done 1")))
	assert.Contains(t, f.out.last(t).text, "«Courses» est faite")

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/cancel #1")))
	assert.Contains(t, f.out.last(t).text, "déjà terminée")

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/cancel 2")))
	assert.Contains(t, f.out.last(t).text, "«Banque» est annulée")

	got, err := f.instances.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func TestCallbackAsksThenConfirms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.link(t, 42)
	inst := &model.TaskInstance{UserID: f.user.ID, Title: "Courses", ScheduledStart: now.Add(8 * time.Hour)}
	require.NoError(t, f.instances.Create(ctx, inst))

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
		Data:    "done:1",
	}
	require.NoError(t, f.bot.handleCallback(ctx, cb))
	assert.Contains(t, f.out.last(t).text, "Marquer comme faite la tâche #1 ?")

	cb.Data = "confirm:done:1"
	require.NoError(t, f.bot.handleCallback(ctx, cb))
	assert.Contains(t, f.out.last(t).text, "est faite")
	assert.Equal(t, 2, f.out.requests)

	got, err := f.instances.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestSyncReportsCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.link(t, 42)
	// The cycle window follows the wall clock.
	require.NoError(t, f.instances.Create(ctx, &model.TaskInstance{UserID: f.user.ID, Title: "Courses", ScheduledStart: time.Now().Add(time.Hour)}))

	require.NoError(t, f.bot.handleMessage(ctx, command(42, "/sync")))
	text := f.out.last(t).text
	assert.Contains(t, text, "Synchronisation terminée")
	assert.Contains(t, text, "• 1 envoyé(s) vers l'agenda")
}

func TestPlanWithoutPlanner(t *testing.T) {
	f := newFixture(t)
	f.link(t, 42)

	require.NoError(t, f.bot.handleMessage(context.Background(), command(42, "/plan")))
	assert.Contains(t, f.out.last(t).text, "pas configurée")
}

func TestSendDailyBriefsOnlyToLinkedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, &model.User{Email: "bob@example.com"}))
	f.link(t, 42)
	f.out.sent = nil

	require.NoError(t, f.bot.SendDailyBriefs(ctx))
	require.Len(t, f.out.sent, 1)
	assert.Equal(t, int64(42), f.out.sent[0].chatID)
	assert.Contains(t, f.out.sent[0].text, "Programme du jour")
}

func TestShortTitle(t *testing.T) {
	assert.Equal(t, "Courses", shortTitle(" Courses ", 10))
	assert.Equal(t, "Rendez-vo…", shortTitle("Rendez-vous médecin", 10))
}
