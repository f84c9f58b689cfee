package metric

import "time"

// State is the health state of a metric as seen by the transition
// function. All three fields start nil/unset: a metric that has never
// been evaluated against a threshold is in the unknown state.
type State struct {
	// Healthy is the immediate state: the verdict of the most recent
	// evaluated point.
	Healthy *bool

	// HealthyTolerant is the debounced state used for alerting. It
	// only flips to unhealthy after an unbroken breach streak at
	// least as long as the threshold tolerance.
	HealthyTolerant *bool

	// FirstBreachAt marks the start of the current breach streak.
	// Nil whenever the last evaluated point was not a breach.
	FirstBreachAt *time.Time
}

// EventType classifies a health transition event.
type EventType string

// Health transition event types.
const (
	EventProblem  EventType = "problem"
	EventRecovery EventType = "recovery"
)

// Transition applies one evaluated point to a health state and returns
// the successor state, plus the event type to emit if the tolerant
// state changed.
//
// Rules:
//   - The immediate state always reflects the latest point.
//   - A breach extends the current streak; the tolerant state flips to
//     unhealthy only once the streak has lasted at least tolerance,
//     measured wall-clock from the first breaching point. Exactly one
//     problem event fires per streak.
//   - A single non-breaching point clears the streak. If the tolerant
//     state was unhealthy, it flips back and exactly one recovery
//     event fires.
//   - A metric entering the healthy state from unknown emits nothing;
//     entering unhealthy from unknown emits a problem event once the
//     tolerance is exceeded.
//
// Transition is pure: it never touches storage or the clock, which is
// what makes the debounce rules directly testable.
func Transition(s State, breach bool, at time.Time, tolerance time.Duration) (State, *EventType) {
	next := s.clone()

	if breach {
		next.Healthy = boolPtr(false)
		if next.FirstBreachAt == nil {
			first := at
			next.FirstBreachAt = &first
		}
		if at.Sub(*next.FirstBreachAt) >= tolerance {
			if next.HealthyTolerant == nil || *next.HealthyTolerant {
				next.HealthyTolerant = boolPtr(false)
				ev := EventProblem
				return next, &ev
			}
		}
		return next, nil
	}

	next.Healthy = boolPtr(true)
	next.FirstBreachAt = nil
	if next.HealthyTolerant != nil && !*next.HealthyTolerant {
		next.HealthyTolerant = boolPtr(true)
		ev := EventRecovery
		return next, &ev
	}
	next.HealthyTolerant = boolPtr(true)
	return next, nil
}

func (s State) clone() State {
	out := State{}
	if s.Healthy != nil {
		out.Healthy = boolPtr(*s.Healthy)
	}
	if s.HealthyTolerant != nil {
		out.HealthyTolerant = boolPtr(*s.HealthyTolerant)
	}
	if s.FirstBreachAt != nil {
		t := *s.FirstBreachAt
		out.FirstBreachAt = &t
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
