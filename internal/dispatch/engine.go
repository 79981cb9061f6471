// Package dispatch runs the gift pipeline over the event stream: filter,
// check, decide, then transfer, record, reply and notify, one event at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kamir/giftbot/internal/config"
	"github.com/kamir/giftbot/internal/cursor"
	"github.com/kamir/giftbot/internal/event"
	"github.com/kamir/giftbot/internal/hive"
	"github.com/kamir/giftbot/internal/ledger"
	"github.com/kamir/giftbot/internal/notify"
	"github.com/kamir/giftbot/internal/policy"
	"github.com/kamir/giftbot/internal/render"
	"github.com/kamir/giftbot/internal/source"
	"github.com/kamir/giftbot/internal/wallet"
)

// Replier posts a reply under the bot's account.
type Replier interface {
	PostReply(ctx context.Context, subjectID, author, body string) error
}

// Deduplicator tells whether the bot already answered a subject.
type Deduplicator interface {
	HasReplied(ctx context.Context, subjectID string) (bool, error)
}

// Wallet reads token holdings and sends tokens.
type Wallet interface {
	GetTokenInfo(ctx context.Context, account, token string) (wallet.TokenInfo, bool, error)
	Transfer(ctx context.Context, from, to string, amount float64, token, memo string) error
}

// GiftLedger is the local gift record.
type GiftLedger interface {
	RecordGift(ctx context.Context, g ledger.Gift) error
	CountToday(ctx context.Context, invoker, day string) (int, error)
	GiftForPosition(ctx context.Context, pos uint64) (ledger.Gift, bool, error)
	LogDecision(ctx context.Context, rec *ledger.DecisionRecord) error
}

// Renderer turns a named template into a reply body.
type Renderer interface {
	Render(name string, params render.Params) (string, error)
	Localized(base string, spanish bool) string
}

// Notifier accepts operational messages without blocking.
type Notifier interface {
	Notify(msg notify.Message)
}

// Settings are the parts of the configuration the engine reads.
type Settings struct {
	Account         string
	Token           string
	Amount          float64
	Memo            string
	EnglishCommand  string
	SpanishCommand  string
	VoteWatcher     bool
	CurationAccount string
	Comments        bool
	Transfers       bool
	NotifyIdentity  string
	ReplyCooldown   time.Duration
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	Location        *time.Location
}

// SettingsFromConfig extracts engine settings from a validated config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Settings{}, err
	}
	identity := cfg.Notify.Identity
	if identity == "" {
		identity = cfg.Account.Name
	}
	return Settings{
		Account:         cfg.Account.Name,
		Token:           cfg.Engine.TokenName,
		Amount:          cfg.Engine.GiftAmount,
		Memo:            cfg.Engine.TransferMemo,
		EnglishCommand:  cfg.Commands.English,
		SpanishCommand:  cfg.Commands.Spanish,
		VoteWatcher:     cfg.VoteWatcher.Enabled,
		CurationAccount: cfg.VoteWatcher.FollowAccount,
		Comments:        cfg.Features.Comments,
		Transfers:       cfg.Features.Transfers,
		NotifyIdentity:  identity,
		ReplyCooldown:   config.Millis(cfg.Dispatch.ReplyCooldownMs),
		RetryBackoff:    config.Millis(cfg.Dispatch.RetryBackoffMs),
		MaxRetryBackoff: config.Millis(cfg.Dispatch.MaxRetryBackoffMs),
		Location:        loc,
	}, nil
}

// PolicyFromConfig builds the eligibility policy.
func PolicyFromConfig(cfg *config.Config) *policy.Policy {
	tiers := make([]policy.Tier, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		tiers = append(tiers, policy.Tier{
			Name:          t.Name,
			MinBalance:    t.MinBalance,
			MinStake:      t.MinStake,
			MaxDailyGifts: t.MaxDailyGifts,
		})
	}
	return policy.New(tiers, cfg.Engine.AllowList)
}

// Options contains the collaborators of an Engine.
type Options struct {
	Settings Settings
	Policy   *policy.Policy
	Source   source.Source
	Dedup    Deduplicator
	Replies  Replier
	Wallet   Wallet
	Ledger   GiftLedger
	Cursor   cursor.Store
	Renderer Renderer
	Notifier Notifier // nil disables notifications
	Now      func() time.Time
	TraceID  func() string
}

// Engine processes events strictly one after another.
type Engine struct {
	settings Settings
	policy   *policy.Policy
	source   source.Source
	dedup    Deduplicator
	replies  Replier
	wallet   Wallet
	ledger   GiftLedger
	cursor   cursor.Store
	renderer Renderer
	notifier Notifier
	limiter  *rate.Limiter
	now      func() time.Time
	traceID  func() string

	// Position of the last event handed to Handle. A redelivery of the same
	// position does not repeat its pre-effect notifications.
	lastSeen uint64
	seenAny  bool
}

// New creates an engine.
func New(opts Options) *Engine {
	s := opts.Settings
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = time.Second
	}
	if s.MaxRetryBackoff < s.RetryBackoff {
		s.MaxRetryBackoff = s.RetryBackoff
	}

	limit := rate.Inf
	if s.ReplyCooldown > 0 {
		limit = rate.Every(s.ReplyCooldown)
	}

	e := &Engine{
		settings: s,
		policy:   opts.Policy,
		source:   opts.Source,
		dedup:    opts.Dedup,
		replies:  opts.Replies,
		wallet:   opts.Wallet,
		ledger:   opts.Ledger,
		cursor:   opts.Cursor,
		renderer: opts.Renderer,
		notifier: opts.Notifier,
		limiter:  rate.NewLimiter(limit, 1),
		now:      opts.Now,
		traceID:  opts.TraceID,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.traceID == nil {
		e.traceID = uuid.NewString
	}
	return e
}

// Kinds returns the event kinds this deployment reacts to.
func (e *Engine) Kinds() []event.Kind {
	kinds := []event.Kind{event.KindComment}
	if e.settings.VoteWatcher {
		kinds = append(kinds, event.KindVote)
	}
	return kinds
}

// Run consumes the stream from the cursor until ctx is cancelled or a finite
// stream ends. Cancellation is only observed between events. Any failure
// while handling an event leaves the cursor where it was; the stream is
// reopened after a backoff and the event is delivered again.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("Dispatch engine started", "account", e.settings.Account, "kinds", e.Kinds())
	backoff := e.settings.RetryBackoff
	for {
		progressed, err := e.runStream(ctx)
		if err == nil || ctx.Err() != nil {
			slog.Info("Dispatch engine stopped")
			return nil
		}
		if progressed {
			backoff = e.settings.RetryBackoff
		}

		slog.Warn("Dispatch interrupted, retrying", "error", err, "backoff", backoff)
		e.notify("", fmt.Sprintf("Processing failed, retrying in %s: %v", backoff, err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			slog.Info("Dispatch engine stopped")
			return nil
		}
		backoff = min(backoff*2, e.settings.MaxRetryBackoff)
	}
}

// runStream processes one opened stream. It returns nil when ctx is done or
// the stream is exhausted.
func (e *Engine) runStream(ctx context.Context) (progressed bool, err error) {
	pos, ok, err := e.cursor.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load cursor: %w", err)
	}
	var from uint64
	if ok {
		from = pos + 1
	}

	stream, err := e.source.Open(ctx, e.Kinds(), from)
	if err != nil {
		return false, fmt.Errorf("open stream at %d: %w", from, err)
	}
	defer stream.Close()

	for {
		if ctx.Err() != nil {
			return progressed, nil
		}
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return progressed, nil
			}
			return progressed, fmt.Errorf("read stream: %w", err)
		}
		if ok && ev.Position <= pos {
			slog.Warn("Stream delivered an already processed position", "position", ev.Position, "cursor", pos)
			continue
		}

		// An event, once started, runs to completion even if shutdown is
		// requested meanwhile.
		hctx := context.WithoutCancel(ctx)
		if _, err := e.Handle(hctx, ev); err != nil {
			return progressed, err
		}
		if err := e.cursor.Save(hctx, ev.Position); err != nil {
			return progressed, fmt.Errorf("save cursor %d: %w", ev.Position, err)
		}
		pos, ok = ev.Position, true
		progressed = true
	}
}

// Handle runs the full pipeline for one event. A returned error means the
// event did not complete and must be delivered again.
func (e *Engine) Handle(ctx context.Context, ev event.Event) (Outcome, error) {
	traceID := e.traceID()
	log := slog.With("trace_id", traceID, "position", ev.Position, "kind", ev.Kind)

	fresh := !e.seenAny || e.lastSeen != ev.Position
	e.lastSeen, e.seenAny = ev.Position, true

	plan, err := e.decide(ctx, ev, fresh, traceID, log)
	if err != nil {
		log.Warn("Event failed", "error", err)
		return Skipped, err
	}
	if err := e.execute(ctx, plan, traceID); err != nil {
		log.Warn("Event failed", "outcome", plan.Outcome, "error", err)
		return plan.Outcome, err
	}
	if plan.Outcome != Skipped {
		log.Info("Event handled", "outcome", plan.Outcome, "reason", plan.Reason)
	}
	return plan.Outcome, nil
}

// decide resolves ev to a plan. fresh is false when ev is a redelivery of
// the previous event; its notes were already sent then.
func (e *Engine) decide(ctx context.Context, ev event.Event, fresh bool, traceID string, log *slog.Logger) (Plan, error) {
	inv, notes, skip := e.filter(ev)
	if fresh {
		for _, note := range notes {
			e.notify(traceID, note)
		}
	}
	if skip != "" {
		return Plan{Outcome: Skipped, Reason: skip}, nil
	}
	log.Info("Invocation found", "invoker", inv.Invoker, "recipient", inv.Recipient, "subject", inv.SubjectID)

	replied, err := e.dedup.HasReplied(ctx, inv.SubjectID)
	if errors.Is(err, hive.ErrNotFound) {
		return Plan{Outcome: Skipped, Reason: "subject not found"}, nil
	}
	if err != nil {
		return Plan{}, err
	}
	if replied {
		return Plan{Outcome: Skipped, Reason: "already replied"}, nil
	}
	if fresh {
		e.notify(traceID, fmt.Sprintf("%s asked to send %s to %s", inv.Invoker, e.settings.Token, inv.Recipient))
	}

	day := ledger.Day(e.now(), e.settings.Location)

	sent, replay, err := e.ledger.GiftForPosition(ctx, ev.Position)
	if err != nil {
		return Plan{}, err
	}

	info, _, err := e.wallet.GetTokenInfo(ctx, inv.Invoker, e.settings.Token)
	if err != nil {
		return Plan{}, err
	}
	count, err := e.ledger.CountToday(ctx, inv.Invoker, day)
	if err != nil {
		return Plan{}, err
	}

	if replay {
		// Evaluate as before the gift was sent so the tier matches the first
		// delivery. A gift from an earlier day is not in today's count.
		before := count
		if sent.Day == day {
			before = max(count-1, 0)
		}
		d := e.policy.Evaluate(inv.Invoker, info.Balance, info.Stake, before)
		log.Info("Gift already recorded for this event, repeating the reply only")
		return e.grantPlan(inv, d, count, day, true)
	}

	d := e.policy.Evaluate(inv.Invoker, info.Balance, info.Stake, count)
	e.logDecision(ctx, traceID, inv, d, log)
	if !d.Allowed {
		return e.denialPlan(inv, d)
	}

	stock, _, err := e.wallet.GetTokenInfo(ctx, e.settings.Account, e.settings.Token)
	if err != nil {
		return Plan{}, err
	}
	if stock.Balance < e.settings.Amount {
		return e.outOfStockPlan(inv)
	}
	return e.grantPlan(inv, d, count, day, false)
}

func (e *Engine) logDecision(ctx context.Context, traceID string, inv Invocation, d policy.Decision, log *slog.Logger) {
	err := e.ledger.LogDecision(ctx, &ledger.DecisionRecord{
		TraceID:   traceID,
		Position:  inv.Event.Position,
		Invoker:   inv.Invoker,
		Recipient: inv.Recipient,
		Tier:      d.Tier,
		Allowed:   d.Allowed,
		Reason:    string(d.Reason),
	})
	if err != nil {
		log.Warn("Failed to log policy decision", "error", err)
	}
}

// execute runs the effects of plan in order. Notifications never fail; any
// other failure stops the remaining effects.
func (e *Engine) execute(ctx context.Context, plan Plan, traceID string) error {
	s := e.settings
	for _, eff := range plan.Effects {
		var err error
		switch eff.Kind {
		case EffectTransfer:
			err = e.wallet.Transfer(ctx, s.Account, eff.To, eff.Amount, s.Token, s.Memo)
		case EffectRecord:
			eff.Gift.CreatedAt = e.now().UTC()
			err = e.ledger.RecordGift(ctx, eff.Gift)
		case EffectReply:
			err = e.reply(ctx, eff.SubjectID, eff.Body)
		case EffectNotify:
			e.notify(traceID, eff.Text)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", eff.Kind, err)
		}
	}
	return nil
}

func (e *Engine) reply(ctx context.Context, subjectID, body string) error {
	if !e.settings.Comments {
		slog.Info("Comments disabled, not posting reply", "subject", subjectID, "body", body)
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	return e.replies.PostReply(ctx, subjectID, e.settings.Account, body)
}

func (e *Engine) notify(traceID, text string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(notify.Message{
		Identity: e.settings.NotifyIdentity,
		Text:     text,
		TraceID:  traceID,
		Time:     e.now().UTC(),
	})
}
