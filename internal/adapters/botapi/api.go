package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	parseModeHTML  = "HTML"
	maxWorkers     = 8
)

// APIError: отказ Bot API с кодом и описанием
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %d: %s", e.Code, e.Description)
}

type API struct {
	botToken    string
	baseURL     string
	client      *http.Client
	pollTimeout time.Duration
	log         *slog.Logger
}

type Option func(*API)

// WithBaseURL подменяет адрес Bot API (тесты, локальный bot-api сервер)
func WithBaseURL(u string) Option {
	return func(a *API) { a.baseURL = strings.TrimRight(u, "/") }
}

func WithPollTimeout(d time.Duration) Option {
	return func(a *API) { a.pollTimeout = d }
}

func NewAPI(botToken string, log *slog.Logger, opts ...Option) *API {
	a := &API{
		botToken:    botToken,
		baseURL:     defaultBaseURL,
		pollTimeout: 30 * time.Second,
		log:         log,
	}
	for _, o := range opts {
		o(a)
	}
	// long poll держит соединение pollTimeout секунд
	a.client = &http.Client{Timeout: a.pollTimeout + 15*time.Second}
	return a
}

// GetMe проверяет токен и доступность Bot API
func (a *API) GetMe(ctx context.Context) (User, error) {
	var me User
	err := a.call(ctx, "getMe", nil, &me)
	return me, err
}

// Send отправляет сообщение и возвращает его message_id
func (a *API) Send(ctx context.Context, chatID int64, r domain.Reply) (int64, error) {
	body := map[string]any{
		"chat_id":    chatID,
		"text":       r.Text,
		"parse_mode": parseModeHTML,
	}
	if kb := Keyboard(r); kb != nil {
		body["reply_markup"] = kb
	}
	var msg Message
	if err := a.call(ctx, "sendMessage", body, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// Edit заменяет текст и клавиатуру уже отправленного сообщения
func (a *API) Edit(ctx context.Context, chatID, messageID int64, r domain.Reply) error {
	kb := Keyboard(r)
	if kb == nil {
		// пустая клавиатура убирает кнопки старого сообщения
		kb = &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{}}
	}
	body := map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"text":         r.Text,
		"parse_mode":   parseModeHTML,
		"reply_markup": kb,
	}
	err := a.call(ctx, "editMessageText", body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

// Notify реализует ports.Notifier: сообщение вне цикла запрос/ответ
func (a *API) Notify(ctx context.Context, chatID int64, r domain.Reply) error {
	_, err := a.Send(ctx, chatID, r)
	return err
}

func (a *API) AnswerCallback(ctx context.Context, callbackQueryID string, text string) error {
	body := map[string]any{
		"callback_query_id": callbackQueryID,
		"text":              text,
		"show_alert":        false,
	}
	return a.call(ctx, "answerCallbackQuery", body, nil)
}

// PollUpdates крутит long polling до отмены ctx.
// Каждое обновление обрабатывается в своей горутине, не больше maxWorkers сразу;
// при выходе дожидается обработчиков.
func (a *API) PollUpdates(ctx context.Context, handler func(context.Context, Update)) error {
	var (
		offset  int64
		wg      sync.WaitGroup
		workers = make(chan struct{}, maxWorkers)
	)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates, err := a.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := time.Second
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
				return err
			}
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			a.log.Warn("getUpdates failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			select {
			case workers <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(u Update) {
				defer wg.Done()
				defer func() { <-workers }()
				handler(ctx, u)
			}(update)
		}
	}
}

func (a *API) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         int(a.pollTimeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := a.call(ctx, "getUpdates", body, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// call выполняет метод Bot API и раскладывает result в out (если out != nil)
func (a *API) call(ctx context.Context, method string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", method, err)
		}
		payload = bytes.NewReader(raw)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", a.baseURL, a.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := a.client.Do(req)
	if err != nil {
		// *url.Error содержит токен в адресе
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%s: %w", method, uerr.Err)
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var env response[json.RawMessage]
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, res.StatusCode, err)
	}
	if !env.OK {
		apiErr := &APIError{Code: env.ErrorCode, Description: strings.TrimSpace(env.Description)}
		if apiErr.Code == 0 {
			apiErr.Code = res.StatusCode
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Close закрывает простаивающие соединения клиента
func (a *API) Close() {
	a.client.CloseIdleConnections()
}
