package domain

// ItemResult: исход для одной сессии (или одной цели) в пакетной операции
type ItemResult struct {
	Session string
	Target  string
	Err     error
}

func (r ItemResult) OK() bool { return r.Err == nil }

// BatchReport: итог Join по всем сессиям
type BatchReport struct {
	Target  string
	Results []ItemResult
}

func (b BatchReport) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

func (b BatchReport) Total() int { return len(b.Results) }

// SessionLeaveReport: итог LeaveAll для одной сессии
type SessionLeaveReport struct {
	Session string
	Left    int
	Failed  int
	Results []ItemResult
}

// LeaveReport: итог LeaveAll целиком
type LeaveReport struct {
	Sessions []SessionLeaveReport
}

func (l LeaveReport) Totals() (left, failed int) {
	for _, s := range l.Sessions {
		left += s.Left
		failed += s.Failed
	}
	return left, failed
}

// JoinPlan: результат предварительной проверки перед Join
type JoinPlan struct {
	Target        Target
	Sessions      []string
	AlreadyJoined []string
}

// NeedsForce: цель уже есть в ledger хотя бы у одной сессии
func (p JoinPlan) NeedsForce() bool { return len(p.AlreadyJoined) > 0 }
