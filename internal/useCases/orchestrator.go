package useCases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/larriantoniy/tg_autojoin_bot/internal/ports"
)

// ErrAlreadyJoined: цель уже есть в ledger, без force вступление не запускается
var ErrAlreadyJoined = errors.New("target already joined")

// Orchestrator выполняет пакетные join/leave по всем сессиям.
// Сессии и цели обрабатываются строго по очереди, с паузой между запросами.
type Orchestrator struct {
	conn   ports.Connector
	creds  ports.CredentialStore
	ledger ports.Ledger
	log    *slog.Logger

	joinDelay  time.Duration
	leaveDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	conn ports.Connector,
	creds ports.CredentialStore,
	ledger ports.Ledger,
	log *slog.Logger,
	joinDelay, leaveDelay time.Duration,
) *Orchestrator {
	return &Orchestrator{
		conn:       conn,
		creds:      creds,
		ledger:     ledger,
		log:        log,
		joinDelay:  joinDelay,
		leaveDelay: leaveDelay,
		sleep:      sleepCtx,
	}
}

// Plan разбирает цель и проверяет, какие сессии уже в ней состоят
func (o *Orchestrator) Plan(ctx context.Context, input string) (domain.JoinPlan, error) {
	target, err := domain.ParseTarget(input)
	if err != nil {
		return domain.JoinPlan{}, err
	}
	sessions, err := o.creds.List(ctx)
	if err != nil {
		return domain.JoinPlan{}, err
	}
	all, err := o.ledger.All(ctx)
	if err != nil {
		return domain.JoinPlan{}, err
	}

	plan := domain.JoinPlan{Target: target, Sessions: sessions}
	for _, name := range sortedKeys(all) {
		for _, t := range all[name] {
			if target.Equal(t) {
				plan.AlreadyJoined = append(plan.AlreadyJoined, name)
				break
			}
		}
	}
	return plan, nil
}

// Join вступает в цель всеми сессиями по очереди.
// Ошибка одной сессии попадает в отчёт и не прерывает пакет.
func (o *Orchestrator) Join(ctx context.Context, input string, force bool) (domain.BatchReport, error) {
	plan, err := o.Plan(ctx, input)
	if err != nil {
		return domain.BatchReport{}, err
	}
	report := domain.BatchReport{Target: plan.Target.String()}
	if plan.NeedsForce() && !force {
		return report, domain.E(domain.KindValidation, "join "+plan.Target.String(),
			fmt.Errorf("%w by %s", ErrAlreadyJoined, strings.Join(plan.AlreadyJoined, ", ")))
	}

	o.log.Info("join request",
		"target", report.Target,
		"sessions", len(plan.Sessions),
		"delay", o.joinDelay,
		"force", force,
	)
	for i, name := range plan.Sessions {
		if i > 0 {
			o.log.Debug("waiting before next session", "delay", o.joinDelay)
			if err := o.sleep(ctx, o.joinDelay); err != nil {
				report.Results = append(report.Results, skipped(plan.Sessions[i:], report.Target, err)...)
				break
			}
		}
		res := domain.ItemResult{Session: name, Target: report.Target, Err: o.joinOne(ctx, name, plan.Target)}
		if res.OK() {
			o.log.Info("joined", "session", name, "target", report.Target)
		} else {
			o.log.Warn("join failed", "session", name, "target", report.Target, "error", res.Err)
		}
		report.Results = append(report.Results, res)
	}

	o.log.Info("join complete", "target", report.Target, "success", report.Succeeded(), "total", report.Total())
	return report, nil
}

func (o *Orchestrator) joinOne(ctx context.Context, name string, target domain.Target) error {
	cli, err := o.open(ctx, name)
	if err != nil {
		return err
	}
	defer cli.Close()

	err = cli.JoinChannel(ctx, target.Handle)
	if err != nil && shouldFallback(err) {
		o.log.Debug("join channel failed, trying invite", "session", name, "target", target.String(), "error", err)
		err = cli.ImportInvite(ctx, target.Handle)
	}
	if err != nil {
		return err
	}

	// ledger лишь кеш удалённого состояния, ошибка записи не отменяет вступление
	if _, err := o.ledger.Add(ctx, name, target.String()); err != nil {
		o.log.Error("record joined target", "session", name, "target", target.String(), "error", err)
	}
	return nil
}

// PendingLeave: сколько отслеживаемых целей и у скольких сессий
func (o *Orchestrator) PendingLeave(ctx context.Context) (targets, sessions int, err error) {
	names, err := o.creds.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	all, err := o.ledger.All(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, name := range names {
		if n := len(all[name]); n > 0 {
			targets += n
			sessions++
		}
	}
	return targets, sessions, nil
}

// LeaveAll выходит из всех отслеживаемых целей всех сессий
func (o *Orchestrator) LeaveAll(ctx context.Context) (domain.LeaveReport, error) {
	names, err := o.creds.List(ctx)
	if err != nil {
		return domain.LeaveReport{}, err
	}
	all, err := o.ledger.All(ctx)
	if err != nil {
		return domain.LeaveReport{}, err
	}

	var report domain.LeaveReport
	for _, name := range names {
		targets := all[name]
		if len(targets) == 0 {
			continue
		}
		o.log.Info("processing leave", "session", name, "targets", len(targets))
		report.Sessions = append(report.Sessions, o.leaveSession(ctx, name, targets))
	}

	left, failed := report.Totals()
	o.log.Info("leave all complete", "left", left, "failed", failed)
	return report, nil
}

func (o *Orchestrator) leaveSession(ctx context.Context, name string, targets []string) domain.SessionLeaveReport {
	rep := domain.SessionLeaveReport{Session: name}

	cli, err := o.open(ctx, name)
	if err != nil {
		// без соединения все цели сессии считаются неудачными
		o.log.Error("connection failed", "session", name, "error", err)
		for _, t := range targets {
			rep.Results = append(rep.Results, domain.ItemResult{Session: name, Target: t, Err: err})
		}
		rep.Failed = len(targets)
		return rep
	}
	defer cli.Close()

	for i, t := range targets {
		if i > 0 {
			if err := o.sleep(ctx, o.leaveDelay); err != nil {
				for _, rest := range targets[i:] {
					rep.Results = append(rep.Results, domain.ItemResult{Session: name, Target: rest, Err: err})
					rep.Failed++
				}
				break
			}
		}
		res := domain.ItemResult{Session: name, Target: t, Err: o.leaveOne(ctx, cli, name, t)}
		if res.OK() {
			rep.Left++
			o.log.Info("left", "session", name, "target", t)
		} else {
			rep.Failed++
			o.log.Warn("leave failed", "session", name, "target", t, "error", res.Err)
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func (o *Orchestrator) leaveOne(ctx context.Context, cli ports.SessionClient, name, raw string) error {
	target, err := domain.ParseTarget(raw)
	if err != nil {
		return err
	}
	err = cli.LeaveChannel(ctx, target.Handle)
	if err != nil && shouldFallback(err) {
		o.log.Debug("leave channel failed, removing self", "session", name, "target", raw, "error", err)
		err = cli.RemoveSelf(ctx, target.Handle)
	}
	if err != nil {
		return err
	}
	if _, err := o.ledger.Remove(ctx, name, raw); err != nil {
		o.log.Error("forget left target", "session", name, "target", raw, "error", err)
	}
	return nil
}

// open восстанавливает соединение сессии из сохранённого blob
func (o *Orchestrator) open(ctx context.Context, name string) (ports.SessionClient, error) {
	blob, err := o.creds.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	cli, err := o.conn.Connect(ctx, blob)
	if err != nil {
		return nil, err
	}
	o.log.Debug("connected", "session", name)
	return cli, nil
}

// shouldFallback: запасной вызов имеет смысл только при отказе удалённой
// стороны; сетевые ошибки и flood wait он не исправит
func shouldFallback(err error) bool {
	return domain.IsKind(err, domain.KindRemoteCall) && !errors.Is(err, domain.ErrRateLimited)
}

func skipped(sessions []string, target string, err error) []domain.ItemResult {
	out := make([]domain.ItemResult, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, domain.ItemResult{Session: s, Target: target, Err: err})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
