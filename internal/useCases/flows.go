package useCases

import (
	"log/slog"
	"sync"

	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
)

// Step: шаг диалога с оператором
type Step string

const (
	StepIdle               Step = "idle-menu"
	StepAwaitingJoinTarget Step = "awaiting-join-target"
	StepAwaitingPhone      Step = "awaiting-phone"
	StepConnecting         Step = "connecting"
	StepAwaitingCode       Step = "awaiting-code"
	StepAwaitingPassword   Step = "awaiting-password"
)

// FlowState: незавершённое взаимодействие одного оператора.
// Login: живое соединение логина; пока шаг awaiting-code/awaiting-password,
// оно же служит продолжением, которое возобновляет ввод оператора.
type FlowState struct {
	Step   Step
	ChatID int64
	Phone  string
	Login  ports.LoginSession
	// Targets: буфер целей, ожидающих подтверждения вступления
	Targets []string
	// Choices: снимок списка сессий, показанного кнопками удаления
	Choices []string

	seq uint64
}

// Registry: in-memory карта operator id → FlowState.
// Каждая запись получает номер; CompareAndSet не даёт фоновому шагу
// перезаписать флоу, который оператор уже отменил или заменил.
type Registry struct {
	mu    sync.Mutex
	flows map[int64]FlowState
	seq   uint64
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{flows: make(map[int64]FlowState), log: log}
}

func (r *Registry) Get(id int64) (FlowState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.flows[id]
	return st, ok
}

// Set заменяет флоу оператора; прежний незавершённый логин закрывается
func (r *Registry) Set(id int64, st FlowState) FlowState {
	return r.Update(id, func(FlowState, bool) FlowState { return st })
}

// Update собирает новый флоу из текущего под одной блокировкой:
// параллельные обновления одного оператора не теряют друг друга.
// fn не должна обращаться к Registry.
func (r *Registry) Update(id int64, fn func(cur FlowState, ok bool) FlowState) FlowState {
	r.mu.Lock()
	prev, had := r.flows[id]
	st := fn(prev, had)
	r.seq++
	st.seq = r.seq
	r.flows[id] = st
	r.mu.Unlock()

	if had && prev.Login != nil && prev.Login != st.Login {
		r.log.Info("pending login replaced", "flow", id, "step", prev.Step)
		prev.Login.Close()
	}
	return st
}

// CompareAndSet записывает st, только если текущий флоу тот же, что seen
func (r *Registry) CompareAndSet(id int64, seen FlowState, st FlowState) (FlowState, bool) {
	r.mu.Lock()
	cur, ok := r.flows[id]
	if !ok || cur.seq != seen.seq {
		r.mu.Unlock()
		return FlowState{}, false
	}
	r.seq++
	st.seq = r.seq
	r.flows[id] = st
	r.mu.Unlock()

	if cur.Login != nil && cur.Login != st.Login {
		cur.Login.Close()
	}
	return st, true
}

// Delete идемпотентен; живой логин флоу закрывается
func (r *Registry) Delete(id int64) {
	r.mu.Lock()
	st, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()

	if ok && st.Login != nil {
		r.log.Info("pending login cancelled", "flow", id, "step", st.Step)
		st.Login.Close()
	}
}

// DeleteIf удаляет флоу, только если он не менялся с момента seen
func (r *Registry) DeleteIf(id int64, seen FlowState) bool {
	r.mu.Lock()
	cur, ok := r.flows[id]
	if !ok || cur.seq != seen.seq {
		r.mu.Unlock()
		return false
	}
	delete(r.flows, id)
	r.mu.Unlock()

	if cur.Login != nil {
		cur.Login.Close()
	}
	return true
}

// Close закрывает все незавершённые логины при остановке
func (r *Registry) Close() {
	r.mu.Lock()
	flows := r.flows
	r.flows = make(map[int64]FlowState)
	r.mu.Unlock()

	for id, st := range flows {
		if st.Login != nil {
			r.log.Info("closing pending login on shutdown", "flow", id)
			st.Login.Close()
		}
	}
}
