package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/larriantoniy/tg_autojoin_bot/internal/adapters/botapi"
	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/useCases"
)

// Transport: то, что обработчику нужно от Bot API
type Transport interface {
	Send(ctx context.Context, chatID int64, r domain.Reply) (int64, error)
	Edit(ctx context.Context, chatID, messageID int64, r domain.Reply) error
	AnswerCallback(ctx context.Context, callbackQueryID, text string) error
}

// ErrorRecorder: лог неожиданных ошибок с подавлением повторов
type ErrorRecorder interface {
	Record(err error) int
}

// Handler: контроллер чата оператора
type Handler struct {
	core       *useCases.Core
	tx         Transport
	operatorID int64
	errs       ErrorRecorder
	log        *slog.Logger
}

func NewHandler(core *useCases.Core, tx Transport, operatorID int64, errs ErrorRecorder, log *slog.Logger) *Handler {
	return &Handler{core: core, tx: tx, operatorID: operatorID, errs: errs, log: log}
}

// screen определяет, куда показывать ответ: правка сообщения с кнопкой или новое сообщение
type screen struct {
	chatID    int64
	messageID int64
}

func (h *Handler) show(ctx context.Context, s screen, r domain.Reply) error {
	if s.messageID != 0 {
		return h.tx.Edit(ctx, s.chatID, s.messageID, r)
	}
	_, err := h.tx.Send(ctx, s.chatID, r)
	return err
}

func (h *Handler) reply(ctx context.Context, chatID int64, r domain.Reply) error {
	_, err := h.tx.Send(ctx, chatID, r)
	return err
}

// Handle обрабатывает одно обновление; ошибки и паники не выходят наружу
func (h *Handler) Handle(ctx context.Context, u botapi.Update) {
	chatID := chatOf(u)
	defer func() {
		if r := recover(); r != nil {
			h.unexpected(ctx, chatID, fmt.Errorf("panic: %v", r))
		}
	}()

	var err error
	switch {
	case u.CallbackQuery != nil:
		err = h.onCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Text != "":
		err = h.onMessage(ctx, u.Message)
	}
	if err != nil {
		h.unexpected(ctx, chatID, err)
	}
}

func (h *Handler) unexpected(ctx context.Context, chatID int64, err error) {
	n := h.errs.Record(err)
	h.log.Error("unhandled bot error", "error", err, "repeat", n)
	if chatID == 0 {
		return
	}
	if _, sendErr := h.tx.Send(ctx, chatID, domain.Reply{Text: "An error occurred. Please try again."}); sendErr != nil {
		h.log.Warn("send failure notice", "error", sendErr)
	}
}

func chatOf(u botapi.Update) int64 {
	switch {
	case u.Message != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat.ID
	case u.CallbackQuery != nil:
		return u.CallbackQuery.From.ID
	}
	return 0
}

func (h *Handler) authorized(userID int64) bool {
	if userID == h.operatorID {
		return true
	}
	h.log.Warn("unauthorized access", "user_id", userID)
	return false
}

func (h *Handler) onCallback(ctx context.Context, q *botapi.CallbackQuery) error {
	if !h.authorized(q.From.ID) {
		return h.tx.AnswerCallback(ctx, q.ID, "Unauthorized.")
	}
	if err := h.tx.AnswerCallback(ctx, q.ID, ""); err != nil {
		h.log.Debug("answer callback", "error", err)
	}

	user := q.From.ID
	s := screen{chatID: q.From.ID}
	if q.Message != nil {
		s = screen{chatID: q.Message.Chat.ID, messageID: q.Message.MessageID}
	}
	data := q.Data
	log := h.log.With("flow", user, "action", data)

	switch {
	case data == actMenu:
		h.core.Flows.Delete(user)
		return h.show(ctx, s, menuReply("<b>Menu</b>"))

	case data == actViewSessions:
		log.Info("view sessions")
		return h.showSessions(ctx, s, 0)
	case strings.HasPrefix(data, actSessionsPage):
		idx, ok := pageIndex(data, actSessionsPage)
		if !ok {
			return nil
		}
		log.Info("view sessions page", "page", idx)
		return h.showSessions(ctx, s, idx)

	case data == actAddSession:
		h.core.Auth.StartEnrollment(user, s.chatID)
		return h.show(ctx, s, withCancel(
			"<b>Add Session — Step 1 of 2</b>\n\nEnter the phone number with country code:\n\n"+
				"Example: <code>+8801234567890</code> or <code>8801234567890</code>"))

	case data == actJoinChannel:
		names, err := h.core.Sessions.Names(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return h.show(ctx, s, withBack("No sessions found. Add a session first."))
		}
		h.core.Flows.Set(user, useCases.FlowState{Step: useCases.StepAwaitingJoinTarget, ChatID: s.chatID})
		log.Info("join channel flow started")
		return h.show(ctx, s, withCancel(
			"<b>Join Channel</b>\n\nSend the channel link or username:\n\n<code>https://t.me/channel</code>\n<code>@channel</code>"))

	case data == actViewJoined:
		log.Info("view joined")
		return h.showJoined(ctx, s, 0)
	case strings.HasPrefix(data, actJoinedPage):
		idx, ok := pageIndex(data, actJoinedPage)
		if !ok {
			return nil
		}
		log.Info("view joined page", "page", idx)
		return h.showJoined(ctx, s, idx)

	case data == actLeaveAll:
		return h.confirmLeaveAll(ctx, s)
	case data == actConfirmLeaveAll:
		log.Warn("confirmed leave all")
		return h.leaveAll(ctx, s)

	case data == actDeleteSession:
		return h.chooseDelete(ctx, s, user)
	case strings.HasPrefix(data, actDelete):
		idx, ok := pageIndex(data, actDelete)
		if !ok {
			return nil
		}
		return h.deleteSession(ctx, s, user, idx)

	case strings.HasPrefix(data, actJoinConfirm):
		idx, ok := pageIndex(data, actJoinConfirm)
		if !ok {
			return nil
		}
		return h.runJoin(ctx, s, user, idx, false)
	case strings.HasPrefix(data, actJoinForce):
		idx, ok := pageIndex(data, actJoinForce)
		if !ok {
			return nil
		}
		log.Info("force join")
		return h.runJoin(ctx, s, user, idx, true)
	}

	log.Warn("unknown callback")
	return nil
}

func (h *Handler) onMessage(ctx context.Context, m *botapi.Message) error {
	if !h.authorized(m.From.ID) {
		return h.reply(ctx, m.Chat.ID, domain.Reply{Text: "Unauthorized."})
	}
	user, chatID := m.From.ID, m.Chat.ID
	text := strings.TrimSpace(m.Text)

	if text == "/start" {
		h.log.Info("/start", "user_id", user, "username", m.From.Username)
		h.core.Flows.Delete(user)
		return h.reply(ctx, chatID, menuReply("<b>Telegram Auto Join Bot</b>\n\nChoose an option:"))
	}

	flow, ok := h.core.Flows.Get(user)
	step := useCases.StepIdle
	if ok {
		step = flow.Step
	}
	h.log.Info("text received", "flow", user, "step", step)

	switch step {
	case useCases.StepAwaitingJoinTarget:
		if !domain.IsTargetLike(text) {
			h.log.Warn("invalid join link", "flow", user)
			return h.reply(ctx, chatID, domain.Reply{
				Text: "Invalid format. Send a channel link:\n\n<code>https://t.me/channel</code>\n<code>@channel</code>"})
		}
		return h.requestJoin(ctx, user, chatID, text)

	case useCases.StepAwaitingPhone:
		return h.submitPhone(ctx, user, chatID, text)

	case useCases.StepAwaitingCode, useCases.StepAwaitingPassword:
		err := h.core.Auth.Resume(ctx, user, text)
		if domain.IsKind(err, domain.KindValidation) {
			return nil
		}
		return err

	case useCases.StepConnecting:
		return h.reply(ctx, chatID, domain.Reply{Text: "Still talking to Telegram, please wait..."})
	}

	if links := domain.ExtractTargets(text); len(links) > 0 {
		for _, link := range links {
			if err := h.requestJoin(ctx, user, chatID, link); err != nil {
				return err
			}
		}
		return nil
	}
	if domain.LooksLikePhone(text) {
		h.log.Info("phone number detected, starting session creation", "flow", user)
		h.core.Auth.StartEnrollment(user, chatID)
		return h.submitPhone(ctx, user, chatID, text)
	}
	return h.reply(ctx, chatID, domain.Reply{
		Text: "Send a channel link to join, or use /start to open the menu.\n\nExamples:\n- https://t.me/channel\n- @channel"})
}

func (h *Handler) submitPhone(ctx context.Context, user, chatID int64, text string) error {
	err := h.core.Auth.SubmitPhone(ctx, user, text)
	if domain.IsKind(err, domain.KindValidation) {
		return h.reply(ctx, chatID, domain.Reply{
			Text: "Invalid format. Enter your number with or without <code>+</code> (example: <code>+8801234567890</code>):"})
	}
	return err
}

// idleFlow оставляет флоу без активного шага как есть, иначе начинает новый
func idleFlow(cur useCases.FlowState, ok bool, chatID int64) useCases.FlowState {
	if !ok || cur.Step != useCases.StepIdle {
		return useCases.FlowState{Step: useCases.StepIdle, ChatID: chatID}
	}
	return cur
}

func (h *Handler) requestJoin(ctx context.Context, user, chatID int64, link string) error {
	plan, err := h.core.Batch.Plan(ctx, link)
	if domain.IsKind(err, domain.KindValidation) {
		return h.reply(ctx, chatID, domain.Reply{Text: fmt.Sprintf("Invalid channel link: <code>%s</code>", esc(link))})
	}
	if err != nil {
		return err
	}
	if len(plan.Sessions) == 0 {
		h.log.Warn("join requested but no sessions available")
		return h.reply(ctx, chatID, domain.Reply{Text: "No sessions available. Add a session first."})
	}

	st := h.core.Flows.Update(user, func(cur useCases.FlowState, ok bool) useCases.FlowState {
		cur = idleFlow(cur, ok, chatID)
		cur.Targets = append(append([]string(nil), cur.Targets...), link)
		return cur
	})
	idx := len(st.Targets) - 1

	if plan.NeedsForce() {
		h.log.Warn("target already joined", "target", plan.Target.String(), "sessions", len(plan.AlreadyJoined))
	} else {
		h.log.Info("join confirmation shown", "target", plan.Target.String(), "sessions", len(plan.Sessions))
	}
	return h.reply(ctx, chatID, joinConfirmation(plan, idx))
}

func (h *Handler) runJoin(ctx context.Context, s screen, user int64, idx int, force bool) error {
	st, ok := h.core.Flows.Get(user)
	if !ok || idx >= len(st.Targets) {
		return h.show(ctx, s, withBack("This request has expired. Send the link again."))
	}
	link := st.Targets[idx]

	if err := h.show(ctx, s, domain.Reply{Text: fmt.Sprintf("Joining: <code>%s</code>\n\nPlease wait...", esc(link))}); err != nil {
		h.log.Warn("show join progress", "error", err)
	}
	report, err := h.core.Batch.Join(ctx, link, force)
	switch {
	case errors.Is(err, useCases.ErrAlreadyJoined):
		// ledger изменился после показа подтверждения
		plan, err := h.core.Batch.Plan(ctx, link)
		if err != nil {
			return err
		}
		return h.show(ctx, s, joinConfirmation(plan, idx))
	case domain.IsKind(err, domain.KindValidation):
		return h.show(ctx, s, withBack(fmt.Sprintf("Invalid channel link: <code>%s</code>", esc(link))))
	case err != nil:
		return err
	}
	return h.show(ctx, s, joinReport(report))
}

func (h *Handler) showSessions(ctx context.Context, s screen, idx int) error {
	sums, err := h.core.Sessions.Summaries(ctx)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		return h.show(ctx, s, withBack("No sessions found.\n\nUse <b>Add Session</b> to create one."))
	}
	return h.show(ctx, s, sessionsPage(sums, idx))
}

func (h *Handler) showJoined(ctx context.Context, s screen, idx int) error {
	entries, err := h.core.Sessions.Joined(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return h.show(ctx, s, withBack("No channels joined yet."))
	}
	return h.show(ctx, s, joinedPage(entries, idx))
}

func (h *Handler) confirmLeaveAll(ctx context.Context, s screen) error {
	targets, sessions, err := h.core.Batch.PendingLeave(ctx)
	if err != nil {
		return err
	}
	if targets == 0 {
		return h.show(ctx, s, withBack("No tracked channels to leave."))
	}
	h.log.Info("leave all initiated", "targets", targets, "sessions", sessions)
	return h.show(ctx, s, domain.Confirmation(
		fmt.Sprintf("<b>Leave All Channels</b>\n\nThis will leave <b>%d</b> tracked channel(s) across <b>%d</b> session(s).\n\n"+
			"This action cannot be undone. Confirm?", targets, sessions),
		domain.Button{Text: "Confirm — Leave All", Action: actConfirmLeaveAll},
		domain.Button{Text: "Cancel", Action: actMenu},
	))
}

func (h *Handler) leaveAll(ctx context.Context, s screen) error {
	if err := h.show(ctx, s, domain.Reply{Text: "Leaving all tracked channels... Please wait."}); err != nil {
		h.log.Warn("show leave progress", "error", err)
	}
	report, err := h.core.Batch.LeaveAll(ctx)
	if err != nil {
		return err
	}
	return h.show(ctx, s, leaveReport(report))
}

func (h *Handler) chooseDelete(ctx context.Context, s screen, user int64) error {
	names, err := h.core.Sessions.Names(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return h.show(ctx, s, withBack("No sessions to delete."))
	}
	h.core.Flows.Update(user, func(cur useCases.FlowState, ok bool) useCases.FlowState {
		cur = idleFlow(cur, ok, s.chatID)
		cur.Choices = names
		return cur
	})
	return h.show(ctx, s, deleteChoices(names))
}

func (h *Handler) deleteSession(ctx context.Context, s screen, user int64, idx int) error {
	st, ok := h.core.Flows.Get(user)
	if !ok || idx >= len(st.Choices) {
		return h.show(ctx, s, withBack("This list has expired. Open Delete Session again."))
	}
	name := st.Choices[idx]

	if err := h.core.Sessions.Delete(ctx, name); err != nil {
		return h.show(ctx, s, withBack(fmt.Sprintf("Failed to delete session: %s", esc(err.Error()))))
	}
	st.Choices = nil
	h.core.Flows.CompareAndSet(user, st, st)
	return h.show(ctx, s, withBackToMenu(fmt.Sprintf("Session <b>%s</b> deleted.", esc(name))))
}
