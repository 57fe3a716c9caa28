package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/botapi"
	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/storage"
	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
	"github.com/larriantoniy/tg_autojoin_bot/internal/useCases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operator = int64(100)
	stranger = int64(200)
)

type sent struct {
	chatID    int64
	messageID int64
	reply     domain.Reply
}

type fakeTransport struct {
	mu      sync.Mutex
	sends   []sent
	edits   []sent
	answers []string
}

func (f *fakeTransport) Send(ctx context.Context, chatID int64, r domain.Reply) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{chatID: chatID, reply: r})
	return int64(len(f.sends)), nil
}

func (f *fakeTransport) Edit(ctx context.Context, chatID, messageID int64, r domain.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{chatID: chatID, messageID: messageID, reply: r})
	return nil
}

func (f *fakeTransport) AnswerCallback(ctx context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTransport) lastSend() domain.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[len(f.sends)-1].reply
}

func (f *fakeTransport) lastEdit() domain.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits[len(f.edits)-1].reply
}

type countingRecorder struct {
	errs []error
}

func (c *countingRecorder) Record(err error) int {
	c.errs = append(c.errs, err)
	return 1
}

// okConnector: каждая сессия вступает и выходит успешно
type okConnector struct {
	panicOnConnect bool
}

func (c okConnector) NewLogin(ctx context.Context) (ports.LoginSession, error) {
	return nil, errors.New("offline")
}

func (c okConnector) Connect(ctx context.Context, blob string) (ports.SessionClient, error) {
	if c.panicOnConnect {
		panic("corrupted client state")
	}
	return okClient{}, nil
}

type okClient struct{}

func (okClient) Self(ctx context.Context) (domain.Identity, error) { return domain.Identity{}, nil }
func (okClient) JoinChannel(ctx context.Context, handle string) error { return nil }
func (okClient) ImportInvite(ctx context.Context, hash string) error { return nil }
func (okClient) LeaveChannel(ctx context.Context, handle string) error { return nil }
func (okClient) RemoveSelf(ctx context.Context, handle string) error { return nil }
func (okClient) Close() {}

type harness struct {
	h      *Handler
	tx     *fakeTransport
	rec    *countingRecorder
	creds  *storage.CredentialStore
	ledger *storage.JSONLedger
	core   *useCases.Core
}

func newHarness(t *testing.T, conn ports.Connector) *harness {
	t.Helper()
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := storage.OpenJSONLedger(filepath.Join(dir, "joined_channels.json"), log)
	require.NoError(t, err)
	profiles, err := storage.OpenJSONProfileStore(filepath.Join(dir, "sessions_info.json"), log)
	require.NoError(t, err)
	creds := storage.NewCredentialStore(filepath.Join(dir, "sessions"), log)

	tx := &fakeTransport{}
	core := useCases.NewCore(useCases.Deps{
		Connector: conn,
		Creds:     creds,
		Ledger:    ledger,
		Profiles:  profiles,
		Notifier: notifierFunc(func(ctx context.Context, chatID int64, r domain.Reply) error {
			_, err := tx.Send(ctx, chatID, r)
			return err
		}),
	}, log)
	rec := &countingRecorder{}
	return &harness{
		h:      NewHandler(core, tx, operator, rec, log),
		tx:     tx,
		rec:    rec,
		creds:  creds,
		ledger: ledger,
		core:   core,
	}
}

type notifierFunc func(ctx context.Context, chatID int64, r domain.Reply) error

func (f notifierFunc) Notify(ctx context.Context, chatID int64, r domain.Reply) error {
	return f(ctx, chatID, r)
}

func (hs *harness) text(from int64, text string) {
	hs.h.Handle(context.Background(), botapi.Update{Message: &botapi.Message{
		MessageID: 1, From: botapi.User{ID: from}, Chat: botapi.Chat{ID: from}, Text: text,
	}})
}

func (hs *harness) press(from int64, data string) {
	hs.h.Handle(context.Background(), botapi.Update{CallbackQuery: &botapi.CallbackQuery{
		ID: "cb", From: botapi.User{ID: from}, Data: data,
		Message: &botapi.Message{MessageID: 55, Chat: botapi.Chat{ID: from}},
	}})
}

func (hs *harness) addSessions(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, hs.creds.Write(context.Background(), n, "blob"))
	}
}

func actions(r domain.Reply) []string {
	var out []string
	for _, row := range r.Buttons {
		for _, b := range row {
			out = append(out, b.Action)
		}
	}
	return out
}

func TestUnauthorizedUserIsRejected(t *testing.T) {
	hs := newHarness(t, okConnector{})

	hs.text(stranger, "/start")
	assert.Equal(t, "Unauthorized.", hs.tx.lastSend().Text)

	hs.press(stranger, actLeaveAll)
	assert.Equal(t, []string{"Unauthorized."}, hs.tx.answers)
	assert.Empty(t, hs.tx.edits)
}

func TestStartShowsMenu(t *testing.T) {
	hs := newHarness(t, okConnector{})
	hs.text(operator, "/start")

	menu := hs.tx.lastSend()
	assert.Contains(t, menu.Text, "Telegram Auto Join Bot")
	assert.Equal(t, []string{
		actViewSessions, actAddSession, actJoinChannel, actViewJoined, actLeaveAll, actDeleteSession,
	}, actions(menu))
}

func TestSessionsPagination(t *testing.T) {
	hs := newHarness(t, okConnector{})
	var names []string
	for i := 1; i <= 12; i++ {
		names = append(names, fmt.Sprintf("S%02d", i))
	}
	hs.addSessions(t, names...)

	hs.press(operator, actViewSessions)
	first := hs.tx.lastEdit()
	assert.Contains(t, first.Text, "Sessions (12) — Page 1/3")
	assert.Equal(t, []string{"sess_p_1", actMenu}, actions(first))
	assert.Equal(t, 5, strings.Count(first.Text, "Joined channels:"))

	hs.press(operator, "sess_p_2")
	last := hs.tx.lastEdit()
	assert.Contains(t, last.Text, "Page 3/3")
	assert.Equal(t, 2, strings.Count(last.Text, "Joined channels:"))
	// на последней странице нет Next
	assert.Equal(t, []string{"sess_p_1", actMenu}, actions(last))
	assert.Contains(t, last.Text, "12. <b>S12</b>")
}

func TestConcurrentLinksGetOwnButtons(t *testing.T) {
	hs := newHarness(t, okConnector{})
	hs.addSessions(t, "A")

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hs.text(operator, fmt.Sprintf("@chan%d", i))
		}(i)
	}
	wg.Wait()

	st, ok := hs.core.Flows.Get(operator)
	require.True(t, ok)
	require.Len(t, st.Targets, n)

	hs.tx.mu.Lock()
	defer hs.tx.mu.Unlock()
	require.Len(t, hs.tx.sends, n)
	for _, s := range hs.tx.sends {
		acts := actions(s.reply)
		require.Len(t, acts, 2)
		idx, ok := pageIndex(acts[0], actJoinConfirm)
		require.True(t, ok, acts[0])
		// кнопка указывает ровно на ту ссылку, которую показывает сообщение
		assert.Contains(t, s.reply.Text, "<code>"+st.Targets[idx]+"</code>")
	}
}

func TestFreeTextLinksAskForConfirmationAndJoin(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, okConnector{})
	hs.addSessions(t, "A", "B")

	hs.text(operator, "https://t.me/news @news @other")
	require.Len(t, hs.tx.sends, 3)
	assert.Equal(t, []string{"jc_0", actMenu}, actions(hs.tx.sends[0].reply))
	assert.Contains(t, hs.tx.sends[0].reply.Text, "<code>@news</code>")
	assert.Equal(t, []string{"jc_2", actMenu}, actions(hs.tx.sends[2].reply))

	hs.press(operator, "jc_0")
	report := hs.tx.lastEdit()
	assert.Contains(t, report.Text, "Success: 2/2")
	assert.Contains(t, report.Text, "+ A")

	targets, err := hs.ledger.Targets(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"@news"}, targets)

	// на повторную ссылку приходит предупреждение и force
	hs.text(operator, "@NEWS")
	warn := hs.tx.lastSend()
	assert.Contains(t, warn.Text, "Already Joined")
	assert.Contains(t, warn.Text, "- A\n- B")
	assert.Equal(t, []string{"jf_3", actMenu}, actions(warn))

	hs.press(operator, "jc_1")
	again := hs.tx.lastEdit()
	assert.Contains(t, again.Text, "Already Joined")

	hs.press(operator, "jf_3")
	assert.Contains(t, hs.tx.lastEdit().Text, "Success: 2/2")
}

func TestJoinConfirmationExpiresAfterReset(t *testing.T) {
	hs := newHarness(t, okConnector{})
	hs.addSessions(t, "A")

	hs.text(operator, "@news")
	hs.press(operator, actMenu)
	hs.press(operator, "jc_0")
	assert.Contains(t, hs.tx.lastEdit().Text, "expired")
}

func TestJoinFlowRejectsGarbage(t *testing.T) {
	hs := newHarness(t, okConnector{})
	hs.addSessions(t, "A")

	hs.press(operator, actJoinChannel)
	st, ok := hs.core.Flows.Get(operator)
	require.True(t, ok)
	assert.Equal(t, useCases.StepAwaitingJoinTarget, st.Step)

	hs.text(operator, "not a link")
	assert.Contains(t, hs.tx.lastSend().Text, "Invalid format")
	st, _ = hs.core.Flows.Get(operator)
	assert.Equal(t, useCases.StepAwaitingJoinTarget, st.Step)

	hs.text(operator, "t.me/news")
	assert.Equal(t, []string{"jc_0", actMenu}, actions(hs.tx.lastSend()))
}

func TestPhoneTextStartsEnrollment(t *testing.T) {
	hs := newHarness(t, okConnector{})

	hs.press(operator, actAddSession)
	hs.text(operator, "123")
	assert.Contains(t, hs.tx.lastSend().Text, "Invalid format. Enter your number")

	// без флоу номер телефона сам запускает создание сессии;
	// соединение недоступно, поэтому флоу заканчивается ошибкой
	hs.press(operator, actMenu)
	hs.text(operator, "+1 (555) 123-4567")
	assert.Contains(t, hs.tx.lastSend().Text, "Session creation failed")
	_, ok := hs.core.Flows.Get(operator)
	assert.False(t, ok)
}

func TestDeleteUsesSnapshot(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, okConnector{})
	hs.addSessions(t, "A", "B")
	_, err := hs.ledger.Add(ctx, "B", "@x")
	require.NoError(t, err)

	hs.press(operator, actDeleteSession)
	assert.Equal(t, []string{"del_0", "del_1", actMenu}, actions(hs.tx.lastEdit()))

	// новая сессия после показа списка не сдвигает индексы
	hs.addSessions(t, "0-first")
	hs.press(operator, "del_1")
	assert.Contains(t, hs.tx.lastEdit().Text, "Session <b>B</b> deleted.")

	names, err := hs.creds.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0-first", "A"}, names)
	targets, err := hs.ledger.Targets(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestLeaveAllRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, okConnector{})
	hs.addSessions(t, "A")

	hs.press(operator, actLeaveAll)
	assert.Contains(t, hs.tx.lastEdit().Text, "No tracked channels")

	_, err := hs.ledger.Add(ctx, "A", "@x")
	require.NoError(t, err)
	hs.press(operator, actLeaveAll)
	confirm := hs.tx.lastEdit()
	assert.Contains(t, confirm.Text, "<b>1</b> tracked channel(s) across <b>1</b> session(s)")
	assert.Equal(t, []string{actConfirmLeaveAll, actMenu}, actions(confirm))

	hs.press(operator, actConfirmLeaveAll)
	assert.Contains(t, hs.tx.lastEdit().Text, "Total: 1 left, 0 failed")
}

func TestUnexpectedPanicIsReported(t *testing.T) {
	hs := newHarness(t, okConnector{panicOnConnect: true})
	hs.addSessions(t, "A")

	hs.text(operator, "@news")
	hs.press(operator, "jc_0")

	require.Len(t, hs.rec.errs, 1)
	assert.Contains(t, hs.rec.errs[0].Error(), "corrupted client state")
	assert.Equal(t, "An error occurred. Please try again.", hs.tx.lastSend().Text)
}
