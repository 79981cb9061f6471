package dispatch

import (
	"fmt"
	"strings"

	"github.com/kamir/giftbot/internal/event"
	"github.com/kamir/giftbot/internal/ledger"
	"github.com/kamir/giftbot/internal/policy"
	"github.com/kamir/giftbot/internal/render"
	"github.com/kamir/giftbot/internal/wallet"
)

// Outcome is the terminal state of one event.
type Outcome int

const (
	Skipped Outcome = iota
	DeniedReplied
	OutOfStockReplied
	GrantedReplied
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case DeniedReplied:
		return "denied_replied"
	case OutOfStockReplied:
		return "out_of_stock_replied"
	case GrantedReplied:
		return "granted_replied"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type EffectKind int

const (
	EffectTransfer EffectKind = iota
	EffectRecord
	EffectReply
	EffectNotify
)

func (k EffectKind) String() string {
	switch k {
	case EffectTransfer:
		return "transfer"
	case EffectRecord:
		return "record"
	case EffectReply:
		return "reply"
	case EffectNotify:
		return "notify"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// Effect is one side effect. Only the fields of its Kind are set.
type Effect struct {
	Kind EffectKind

	To     string  // transfer
	Amount float64 // transfer

	Gift ledger.Gift // record

	SubjectID string // reply
	Body      string // reply

	Text string // notify
}

// Plan is what an event resolves to: a terminal outcome and the side effects
// to run, in order.
type Plan struct {
	Outcome Outcome
	Reason  string
	Effects []Effect
}

// Invocation is an event that passed the filters.
type Invocation struct {
	Event     event.Event
	Invoker   string
	Recipient string
	SubjectID string
	Curation  bool // triggered by a curation vote rather than a comment
	Spanish   bool
}

// filter turns ev into an Invocation, or reports why it is skipped. Notes are
// notifications to send either way. It performs no I/O.
func (e *Engine) filter(ev event.Event) (inv Invocation, notes []string, skip string) {
	s := e.settings
	if ev.Actor == s.Account {
		return inv, nil, "own operation"
	}

	switch ev.Kind {
	case event.KindComment:
		if ev.ParentAuthor == s.Account {
			notes = append(notes, fmt.Sprintf("%s replied with: %s", ev.Actor, ev.Body))
		}
		english := s.EnglishCommand != "" && strings.Contains(ev.Body, s.EnglishCommand)
		spanish := s.SpanishCommand != "" && strings.Contains(ev.Body, s.SpanishCommand)
		if !english && !spanish {
			return inv, notes, "no command"
		}
		inv.Spanish = spanish
	case event.KindVote:
		if !s.VoteWatcher {
			return inv, notes, "votes not watched"
		}
		if ev.Actor != s.CurationAccount {
			return inv, notes, "vote from other account"
		}
		if ev.VoteWeight < 0 {
			return inv, notes, "downvote"
		}
		inv.Curation = true
	default:
		return inv, notes, "unknown kind"
	}

	inv.Event = ev
	inv.Invoker = ev.Actor
	inv.Recipient = ev.SubjectAuthor
	inv.SubjectID = ev.SubjectID

	switch {
	case inv.Recipient == "":
		return inv, notes, "no recipient"
	case inv.Invoker == inv.Recipient:
		return inv, notes, "self gift"
	case inv.Recipient == s.Account:
		return inv, notes, "recipient is the bot"
	}
	return inv, notes, ""
}

func (e *Engine) baseParams(inv Invocation) render.Params {
	return render.Params{
		"token_name":     e.settings.Token,
		"token_amount":   e.settings.Amount,
		"author_account": inv.Invoker,
		"target_account": inv.Recipient,
	}
}

// denialPlan answers an invoker the policy turned down.
func (e *Engine) denialPlan(inv Invocation, d policy.Decision) (Plan, error) {
	params := e.baseParams(inv)
	// Denial replies address the invoker.
	params["target_account"] = inv.Invoker

	var name, note string
	if d.Reason == policy.ReasonDailyLimitReached {
		name = render.CommentDailyLimit
		params["max_daily_gifts"] = d.MaxDailyGifts
		note = fmt.Sprintf("%s tried to send %s but reached the daily limit.", inv.Invoker, e.settings.Token)
	} else {
		name = render.CommentFail
		lowest, _ := e.policy.Lowest()
		params["min_balance"] = lowest.MinBalance
		params["min_staked"] = lowest.MinStake
		note = fmt.Sprintf("%s tried to send %s but didnt meet requirements.", inv.Invoker, e.settings.Token)
	}

	body, err := e.renderer.Render(e.renderer.Localized(name, inv.Spanish), params)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Outcome: DeniedReplied,
		Reason:  string(d.Reason),
		Effects: []Effect{
			{Kind: EffectReply, SubjectID: inv.SubjectID, Body: body},
			{Kind: EffectNotify, Text: note},
		},
	}, nil
}

// outOfStockPlan answers when the bot cannot afford one gift.
func (e *Engine) outOfStockPlan(inv Invocation) (Plan, error) {
	body, err := e.renderer.Render(e.renderer.Localized(render.CommentOutOfStock, inv.Spanish), e.baseParams(inv))
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Outcome: OutOfStockReplied,
		Reason:  "out_of_stock",
		Effects: []Effect{
			{Kind: EffectNotify, Text: fmt.Sprintf("Bot wallet has run out of %s", e.settings.Token)},
			{Kind: EffectReply, SubjectID: inv.SubjectID, Body: body},
		},
	}, nil
}

// grantPlan sends the gift. countToday is the invoker's count before this
// gift. With replay set, the transfer and record already happened on an
// earlier delivery and only the reply is repeated.
func (e *Engine) grantPlan(inv Invocation, d policy.Decision, countToday int, day string, replay bool) (Plan, error) {
	s := e.settings
	var effects []Effect

	sends := s.Transfers && !replay
	if sends {
		effects = append(effects,
			Effect{Kind: EffectTransfer, To: inv.Recipient, Amount: s.Amount},
			Effect{Kind: EffectRecord, Gift: ledger.Gift{
				Day:            day,
				Invoker:        inv.Invoker,
				Recipient:      inv.Recipient,
				SourcePosition: inv.Event.Position,
			}},
		)
		countToday++
	}

	params := e.baseParams(inv)
	name := render.CommentCuration
	if !inv.Curation {
		name = e.renderer.Localized(render.CommentSuccess, inv.Spanish)
		params["today_gift_count"] = countToday
		params["max_daily_gifts"] = d.MaxDailyGifts
	}
	body, err := e.renderer.Render(name, params)
	if err != nil {
		return Plan{}, err
	}
	effects = append(effects, Effect{Kind: EffectReply, SubjectID: inv.SubjectID, Body: body})

	if sends {
		effects = append(effects, Effect{
			Kind: EffectNotify,
			Text: fmt.Sprintf("I sent %s %s to %s", wallet.FormatAmount(s.Amount), s.Token, inv.Recipient),
		})
	}

	reason := string(d.Reason)
	if replay {
		reason = "replayed"
	}
	return Plan{Outcome: GrantedReplied, Reason: reason, Effects: effects}, nil
}
