// Package policy decides whether an invoker may send a gift.
package policy

// Reason explains a Decision.
type Reason string

const (
	ReasonGranted           Reason = "granted"
	ReasonAllowListed       Reason = "allow_listed"
	ReasonBelowThreshold    Reason = "below_threshold"
	ReasonDailyLimitReached Reason = "daily_limit_reached"
)

// TierDenied is the tier number of an invoker that matched no tier.
const TierDenied = 0

// Tier is an access bracket. Tiers are configured lowest first.
type Tier struct {
	Name          string
	MinBalance    float64
	MinStake      float64
	MaxDailyGifts int
}

// Decision is the result of evaluating one invocation.
type Decision struct {
	Tier          int // 1-based; TierDenied when nothing matched
	TierName      string
	Allowed       bool
	Reason        Reason
	MaxDailyGifts int
}

// Policy maps account holdings and today's usage to a Decision.
type Policy struct {
	Tiers     []Tier
	AllowList []string
}

// New returns a Policy over the given tiers (lowest first) and allow-list.
func New(tiers []Tier, allowList []string) *Policy {
	return &Policy{Tiers: tiers, AllowList: allowList}
}

// Evaluate is deterministic and performs no I/O.
//
// Allow-listed accounts get the top tier unconditionally. Otherwise tiers are
// checked from highest to lowest and the first one whose minimums are met is
// used; the daily limit of that tier is final even when a lower tier still has
// room.
func (p *Policy) Evaluate(account string, balance, stake float64, countToday int) Decision {
	if p.allowListed(account) && len(p.Tiers) > 0 {
		top := len(p.Tiers) - 1
		return Decision{
			Tier:          top + 1,
			TierName:      p.Tiers[top].Name,
			Allowed:       true,
			Reason:        ReasonAllowListed,
			MaxDailyGifts: p.Tiers[top].MaxDailyGifts,
		}
	}

	idx, ok := p.match(balance, stake)
	if !ok {
		return Decision{Tier: TierDenied, Reason: ReasonBelowThreshold}
	}

	tier := p.Tiers[idx]
	d := Decision{
		Tier:          idx + 1,
		TierName:      tier.Name,
		MaxDailyGifts: tier.MaxDailyGifts,
	}
	if countToday >= tier.MaxDailyGifts {
		d.Reason = ReasonDailyLimitReached
		return d
	}
	d.Allowed = true
	d.Reason = ReasonGranted
	return d
}

// Lowest returns the entry tier, used to tell denied invokers what they need.
func (p *Policy) Lowest() (Tier, bool) {
	if len(p.Tiers) == 0 {
		return Tier{}, false
	}
	return p.Tiers[0], true
}

func (p *Policy) match(balance, stake float64) (int, bool) {
	for i := len(p.Tiers) - 1; i >= 0; i-- {
		t := p.Tiers[i]
		if balance >= t.MinBalance && stake >= t.MinStake {
			return i, true
		}
	}
	return 0, false
}

func (p *Policy) allowListed(account string) bool {
	for _, allowed := range p.AllowList {
		if allowed == account {
			return true
		}
	}
	return false
}
