package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

// callback data кнопок
const (
	actMenu            = domain.ActionBackToMenu
	actViewSessions    = "view_sessions"
	actSessionsPage    = "sess_p_"
	actAddSession      = "add_session"
	actJoinChannel     = "join_channel"
	actViewJoined      = "view_joined"
	actJoinedPage      = "join_p_"
	actLeaveAll        = "leave_all"
	actConfirmLeaveAll = "confirm_leave_all"
	actDeleteSession   = "delete_session"
	actDelete          = "del_"
	actJoinConfirm     = "jc_"
	actJoinForce       = "jf_"
)

const createdLayout = "2006-01-02 15:04:05"

var esc = html.EscapeString

func menuReply(title string) domain.Reply {
	return domain.Reply{
		Text: title,
		Buttons: [][]domain.Button{
			{{Text: "Sessions", Action: actViewSessions}, {Text: "Add Session", Action: actAddSession}},
			{{Text: "Join Channel", Action: actJoinChannel}, {Text: "Joined List", Action: actViewJoined}},
			{{Text: "Leave All", Action: actLeaveAll}, {Text: "Delete Session", Action: actDeleteSession}},
		},
	}
}

func withBack(text string) domain.Reply {
	return domain.Reply{Text: text}.WithButton("Back", actMenu)
}

func withCancel(text string) domain.Reply {
	return domain.Reply{Text: text}.WithButton("Cancel", actMenu)
}

func withBackToMenu(text string) domain.Reply {
	return domain.Reply{Text: text}.WithButton("Back to Menu", actMenu)
}

// pageNav: ряд Back/Next; кнопки за пределы списка не создаются
func pageNav(p domain.Page, prefix string) [][]domain.Button {
	var nav []domain.Button
	if p.HasPrev() {
		nav = append(nav, domain.Button{Text: "Back", Action: prefix + strconv.Itoa(p.Index-1)})
	}
	if p.HasNext() {
		nav = append(nav, domain.Button{Text: "Next", Action: prefix + strconv.Itoa(p.Index+1)})
	}
	var rows [][]domain.Button
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return append(rows, []domain.Button{{Text: "Menu", Action: actMenu}})
}

func sessionsPage(sums []domain.SessionSummary, index int) domain.Reply {
	p := domain.Paginate(len(sums), index, domain.SessionsPageSize)

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Sessions (%d) — Page %d/%d</b>\n\n", len(sums), p.Index+1, p.Pages)
	for i, s := range sums[p.Start:p.End] {
		fmt.Fprintf(&b, "%d. <b>%s</b>\n", p.Start+i+1, esc(s.Name))
		if s.Profile != nil {
			fmt.Fprintf(&b, "   Phone: %s\n", esc(s.Profile.Phone))
			fmt.Fprintf(&b, "   Name: %s\n", esc(s.Profile.DisplayName()))
			fmt.Fprintf(&b, "   Username: %s\n", esc(domain.Mention(s.Profile.Username)))
			fmt.Fprintf(&b, "   Created: %s\n", s.Profile.CreatedAt.Local().Format(createdLayout))
		}
		fmt.Fprintf(&b, "   Joined channels: %d\n\n", s.JoinedCount)
	}
	return domain.Reply{Text: b.String(), Buttons: pageNav(p, actSessionsPage)}
}

func joinedPage(entries []domain.LedgerEntry, index int) domain.Reply {
	p := domain.Paginate(len(entries), index, domain.JoinedPageSize)

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Joined Channels (%d) — Page %d/%d</b>\n\n", len(entries), p.Index+1, p.Pages)
	for _, e := range entries[p.Start:p.End] {
		fmt.Fprintf(&b, "[%s] %s\n", esc(e.Session), esc(e.Target))
	}
	return domain.Reply{Text: b.String(), Buttons: pageNav(p, actJoinedPage)}
}

// joinConfirmation: подтверждение вступления; idx, позиция цели в буфере флоу
func joinConfirmation(plan domain.JoinPlan, idx int) domain.Reply {
	proceed := fmt.Sprintf("Proceed — %d session", len(plan.Sessions))
	target := esc(plan.Target.String())
	if plan.NeedsForce() {
		var list strings.Builder
		for _, s := range plan.AlreadyJoined {
			fmt.Fprintf(&list, "- %s\n", esc(s))
		}
		return domain.Confirmation(
			fmt.Sprintf("<b>Already Joined</b>\n\nChannel: <code>%s</code>\n\nAlready joined by:\n%s\nForce join with all %d session?",
				target, list.String(), len(plan.Sessions)),
			domain.Button{Text: proceed, Action: actJoinForce + strconv.Itoa(idx)},
			domain.Button{Text: "Cancel", Action: actMenu},
		)
	}
	return domain.Confirmation(
		fmt.Sprintf("<b>Confirm Join</b>\n\nChannel: <code>%s</code>\nSessions available: <b>%d</b>\n\nProceed to join with all sessions?",
			target, len(plan.Sessions)),
		domain.Button{Text: proceed, Action: actJoinConfirm + strconv.Itoa(idx)},
		domain.Button{Text: "Cancel", Action: actMenu},
	)
}

func joinReport(r domain.BatchReport) domain.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Join Results</b>\n<code>%s</code>\n\n", esc(r.Target))
	for _, item := range r.Results {
		if item.OK() {
			fmt.Fprintf(&b, "+ %s\n", esc(item.Session))
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", esc(item.Session), esc(item.Err.Error()))
		}
	}
	fmt.Fprintf(&b, "\nSuccess: %d/%d", r.Succeeded(), r.Total())
	return withBackToMenu(b.String())
}

func leaveReport(r domain.LeaveReport) domain.Reply {
	var b strings.Builder
	b.WriteString("<b>Leave All — Complete</b>\n\n")
	for _, s := range r.Sessions {
		fmt.Fprintf(&b, "<b>%s</b>: %d left, %d failed\n", esc(s.Session), s.Left, s.Failed)
	}
	left, failed := r.Totals()
	fmt.Fprintf(&b, "\nTotal: %d left, %d failed", left, failed)
	return withBackToMenu(b.String())
}

func deleteChoices(names []string) domain.Reply {
	r := domain.Reply{Text: "<b>Delete Session</b>\n\nSelect session to delete:"}
	for i, name := range names {
		r = r.WithButton(name, actDelete+strconv.Itoa(i))
	}
	return r.WithButton("Cancel", actMenu)
}

// pageIndex разбирает номер из callback вида "<prefix><n>"
func pageIndex(data, prefix string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(data, prefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
