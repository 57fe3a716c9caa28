package useCases

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
)

// Authenticator проводит новую сессию через логин: телефон → код → (2FA).
// Ожидание ввода оператора не держит горутину: шаг хранится в Registry,
// следующий ввод продолжает его через Resume.
type Authenticator struct {
	flows    *Registry
	conn     ports.Connector
	creds    ports.CredentialStore
	profiles ports.ProfileStore
	notify   ports.Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewAuthenticator(
	flows *Registry,
	conn ports.Connector,
	creds ports.CredentialStore,
	profiles ports.ProfileStore,
	notify ports.Notifier,
	log *slog.Logger,
) *Authenticator {
	return &Authenticator{
		flows:    flows,
		conn:     conn,
		creds:    creds,
		profiles: profiles,
		notify:   notify,
		log:      log,
		now:      time.Now,
	}
}

// StartEnrollment переводит оператора в ожидание номера телефона
func (a *Authenticator) StartEnrollment(id, chatID int64) {
	a.flows.Set(id, FlowState{Step: StepAwaitingPhone, ChatID: chatID})
	a.log.Info("session creation started", "flow", id)
}

// SubmitPhone проверяет номер и открывает соединение логина.
// Ошибка валидации возвращается как есть, флоу остаётся в awaiting-phone.
func (a *Authenticator) SubmitPhone(ctx context.Context, id int64, text string) error {
	cur, ok := a.flows.Get(id)
	if !ok || cur.Step != StepAwaitingPhone {
		return domain.E(domain.KindValidation, "submit phone", errors.New("no enrollment in progress"))
	}
	phone, err := domain.NormalizePhone(text)
	if err != nil {
		a.log.Warn("invalid phone format", "flow", id)
		return err
	}

	st := a.flows.Set(id, FlowState{Step: StepConnecting, ChatID: cur.ChatID, Phone: phone})
	log := a.log.With("flow", id, "phone", phone)
	log.Info("phone set, initiating auth")
	a.send(ctx, st.ChatID, domain.Reply{Text: fmt.Sprintf(
		"<b>Add Session — Step 2 of 2</b>\n\nConnecting to Telegram for <code>%s</code>...\n\nA verification code will be sent to this number.",
		phone,
	)})

	login, err := a.conn.NewLogin(ctx)
	if err != nil {
		a.fail(ctx, id, st, nil, err)
		return nil
	}
	ch, err := login.Begin(ctx, phone)
	if err != nil {
		a.fail(ctx, id, st, login, err)
		return nil
	}
	a.advance(ctx, id, st, login, ch)
	return nil
}

// Resume передаёт код или пароль в ожидающий логин
func (a *Authenticator) Resume(ctx context.Context, id int64, text string) error {
	cur, ok := a.flows.Get(id)
	if !ok || cur.Login == nil || (cur.Step != StepAwaitingCode && cur.Step != StepAwaitingPassword) {
		return domain.E(domain.KindValidation, "resume login", errors.New("no login is waiting for input"))
	}
	text = strings.TrimSpace(text)

	// продолжение одноразовое: пока шаг выполняется, повторный ввод игнорируется
	busy := cur
	busy.Step = StepConnecting
	st, ok := a.flows.CompareAndSet(id, cur, busy)
	if !ok {
		return nil
	}
	log := a.log.With("flow", id, "phone", st.Phone)
	log.Info("login input received", "step", cur.Step)

	var (
		ch  ports.Challenge
		err error
	)
	if cur.Step == StepAwaitingCode {
		ch, err = st.Login.SubmitCode(ctx, text)
	} else {
		ch, err = st.Login.SubmitPassword(ctx, text)
	}
	if err != nil {
		a.fail(ctx, id, st, st.Login, err)
		return nil
	}
	a.advance(ctx, id, st, st.Login, ch)
	return nil
}

func (a *Authenticator) advance(ctx context.Context, id int64, st FlowState, login ports.LoginSession, ch ports.Challenge) {
	log := a.log.With("flow", id, "phone", st.Phone)

	var (
		next   = st
		prompt domain.Reply
	)
	next.Login = login
	switch ch.Kind {
	case ports.ChallengeDone:
		a.complete(ctx, id, st, login)
		return
	case ports.ChallengeCode:
		next.Step = StepAwaitingCode
		prompt.Text = fmt.Sprintf("Verification code sent to <code>%s</code>.\n\nEnter the code:", st.Phone)
		log.Info("waiting for verification code")
	case ports.ChallengePassword:
		next.Step = StepAwaitingPassword
		hint := ""
		if ch.Hint != "" {
			hint = fmt.Sprintf(" (hint: %s)", html.EscapeString(ch.Hint))
		}
		prompt.Text = fmt.Sprintf("Two-factor authentication is enabled%s.\n\nEnter your 2FA password:", hint)
		log.Info("2FA required", "has_hint", ch.Hint != "")
	default:
		a.fail(ctx, id, st, login, domain.E(domain.KindAuthChallenge, "login",
			fmt.Errorf("unexpected challenge %d", ch.Kind)))
		return
	}

	if _, ok := a.flows.CompareAndSet(id, st, next); !ok {
		log.Info("login flow was cancelled, dropping connection")
		login.Close()
		return
	}
	a.send(ctx, st.ChatID, prompt)
}

// complete сохраняет авторизованную сессию и предлагает добавить следующую
func (a *Authenticator) complete(ctx context.Context, id int64, st FlowState, login ports.LoginSession) {
	log := a.log.With("flow", id, "phone", st.Phone)
	log.Info("auth complete, fetching user info")

	self, err := login.Self(ctx)
	if err != nil {
		a.fail(ctx, id, st, login, err)
		return
	}
	names, err := a.creds.List(ctx)
	if err != nil {
		a.fail(ctx, id, st, login, err)
		return
	}
	name, err := domain.SessionName(self, st.Phone, len(names), func(candidate string) (bool, error) {
		return a.creds.Exists(ctx, candidate)
	})
	if err != nil {
		a.fail(ctx, id, st, login, err)
		return
	}

	blob, err := login.Serialize(ctx)
	if err != nil {
		a.fail(ctx, id, st, login, err)
		return
	}
	if err := a.creds.Write(ctx, name, blob); err != nil {
		a.fail(ctx, id, st, login, err)
		return
	}
	log.Info("session file written", "session", name)

	if err := a.profiles.Put(ctx, name, self.ToProfile(st.Phone, a.now())); err != nil {
		log.Error("save session profile", "session", name, "error", err)
	}

	display := self.FullName()
	if display == "" {
		display = "N/A"
	}
	log.Info("session created", "session", name, "user", display, "username", self.Username)
	a.send(ctx, st.ChatID, domain.Reply{Text: fmt.Sprintf(
		"<b>Session Created</b>\n\nSession: %s\nPhone: %s\nUser: %s\nUsername: %s",
		html.EscapeString(name), st.Phone, html.EscapeString(display), html.EscapeString(domain.Mention(self.Username)),
	)})

	if _, ok := a.flows.CompareAndSet(id, st, FlowState{Step: StepAwaitingPhone, ChatID: st.ChatID}); !ok {
		return
	}
	log.Info("asking for next account")
	a.send(ctx, st.ChatID, domain.Reply{
		Text: "Add another account? Send the next phone number, or press Done to return to the menu.",
	}.WithButton("Done", domain.ActionBackToMenu))
}

// fail бросает логин целиком: соединение закрыто, флоу удалён, ничего не сохранено
func (a *Authenticator) fail(ctx context.Context, id int64, st FlowState, login ports.LoginSession, err error) {
	a.log.Error("session creation failed", "flow", id, "phone", st.Phone, "kind", domain.KindOf(err).String(), "error", err)
	if login != nil {
		login.Close()
	}
	if !a.flows.DeleteIf(id, st) {
		return
	}
	a.send(ctx, st.ChatID, domain.Reply{Text: fmt.Sprintf(
		"Session creation failed:\n\n%s\n\nUse /start to try again.", html.EscapeString(err.Error()),
	)})
}

func (a *Authenticator) send(ctx context.Context, chatID int64, r domain.Reply) {
	if err := a.notify.Notify(ctx, chatID, r); err != nil {
		a.log.Warn("notify operator", "chat_id", chatID, "error", err)
	}
}
