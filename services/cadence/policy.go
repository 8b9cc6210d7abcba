package cadence

import (
	"sync"
	"time"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
)

// PeriodKey identifies the bucket in which at most one proof is active.
type PeriodKey string

// WholeChallenge is the single period of an END_OF_CHALLENGE challenge.
const WholeChallenge PeriodKey = "challenge"

const dayLayout = "2006-01-02"

// Rejection reasons reported by CanSubmit.
const (
	ReasonNotStarted     = "challenge has not started"
	ReasonChallengeEnded = "challenge has ended"
)

// Decision is the outcome of CanSubmit.
type Decision struct {
	Allowed bool
	Reason  string
	Period  PeriodKey
	// Replaces is true when a submission in an occupied period supersedes the active proof.
	Replaces bool
}

type rule struct {
	window    func(p *Policy, ch *models.Challenge) Window
	periodKey func(p *Policy, ch *models.Challenge, at time.Time) PeriodKey
	required  func(ch *models.Challenge) int
	replaces  bool
}

var rules = map[models.Cadence]rule{
	models.CadenceDaily: {
		window: func(p *Policy, ch *models.Challenge) Window {
			w := WindowOf(ch)
			if ch.Rules.Daily != nil && ch.Rules.Daily.IncludeEndDay {
				end := w.EndAt.In(p.locationFor(ch))
				w.EndAt = time.Date(end.Year(), end.Month(), end.Day()+1, 0, 0, 0, 0, end.Location())
			}
			return w
		},
		periodKey: func(p *Policy, ch *models.Challenge, at time.Time) PeriodKey {
			return PeriodKey(at.In(p.locationFor(ch)).Format(dayLayout))
		},
		required: func(ch *models.Challenge) int {
			span := ch.EndAt.Sub(ch.StartAt)
			days := int(span / (24 * time.Hour))
			if span%(24*time.Hour) != 0 {
				days++
			}
			return days + 1
		},
		replaces: true,
	},
	models.CadenceEndOfChallenge: {
		window: func(_ *Policy, ch *models.Challenge) Window {
			w := WindowOf(ch)
			if g := ch.Rules.EndOfChallenge; g != nil && g.GraceSeconds > 0 {
				w.EndAt = w.EndAt.Add(time.Duration(g.GraceSeconds) * time.Second)
			}
			return w
		},
		periodKey: func(*Policy, *models.Challenge, time.Time) PeriodKey {
			return WholeChallenge
		},
		required: func(*models.Challenge) int { return 1 },
		replaces: true,
	},
}

func lookup(c models.Cadence) (rule, error) {
	r, ok := rules[c]
	if !ok {
		return rule{}, errutil.UnknownCadence(string(c))
	}
	return r, nil
}

// Policy decides submission allowance and period keys. Location is the default day boundary
// for DAILY challenges that do not configure their own timezone.
type Policy struct {
	Location *time.Location

	mu        sync.Mutex
	locations map[string]*time.Location
}

// NewPolicy builds a Policy; a nil location means server local time.
func NewPolicy(loc *time.Location) *Policy {
	if loc == nil {
		loc = time.Local
	}
	return &Policy{Location: loc, locations: map[string]*time.Location{}}
}

// CanSubmit reports whether a submission at the given instant is permitted.
func (p *Policy) CanSubmit(ch *models.Challenge, at time.Time) (Decision, error) {
	r, err := lookup(ch.Cadence)
	if err != nil {
		return Decision{}, err
	}
	w := r.window(p, ch)
	if !w.Started(at) {
		return Decision{Reason: ReasonNotStarted}, nil
	}
	if w.Ended(at) {
		return Decision{Reason: ReasonChallengeEnded}, nil
	}
	return Decision{Allowed: true, Period: r.periodKey(p, ch, at), Replaces: r.replaces}, nil
}

// Admit is CanSubmit with rejections returned as state errors.
func (p *Policy) Admit(ch *models.Challenge, at time.Time) (PeriodKey, error) {
	d, err := p.CanSubmit(ch, at)
	if err != nil {
		return "", err
	}
	if !d.Allowed {
		reason := errutil.ReasonChallengeEnded
		if d.Reason == ReasonNotStarted {
			reason = errutil.ReasonChallengeNotStarted
		}
		return "", errutil.State(reason, d.Reason)
	}
	return d.Period, nil
}

// PeriodKeyFor returns the period a timestamp belongs to, regardless of the window.
func (p *Policy) PeriodKeyFor(ch *models.Challenge, at time.Time) (PeriodKey, error) {
	r, err := lookup(ch.Cadence)
	if err != nil {
		return "", err
	}
	return r.periodKey(p, ch, at), nil
}

// RequiredPeriods is the number of periods an enrollment must fill to complete the challenge.
func RequiredPeriods(ch *models.Challenge) (int, error) {
	r, err := lookup(ch.Cadence)
	if err != nil {
		return 0, err
	}
	return r.required(ch), nil
}

func (p *Policy) locationFor(ch *models.Challenge) *time.Location {
	def := p.Location
	if def == nil {
		def = time.Local
	}
	if ch.Rules.Daily == nil || ch.Rules.Daily.Timezone == "" {
		return def
	}
	name := ch.Rules.Daily.Timezone

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locations == nil {
		p.locations = map[string]*time.Location{}
	}
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = def
	}
	p.locations[name] = loc
	return loc
}
