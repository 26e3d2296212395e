package booking

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Dialogue steps of the booking flow.
const (
	StepIdle            = "idle"
	StepAwaitingReason  = "awaiting_reason"
	StepAwaitingDate    = "awaiting_date"
	StepAwaitingSlot    = "awaiting_slot"
	StepAwaitingName    = "awaiting_name"
	StepAwaitingConfirm = "awaiting_confirm"
)

// Dialogue states older than this are swept away, forcing a fresh start for
// users who vanished mid-flow.
const staleAfter = 30 * time.Minute

// DialogueState tracks one counterparty's position in the multi-turn
// booking conversation. In-memory only; lost on restart, which just means
// the user restarts the flow.
type DialogueState struct {
	Step      string
	Reason    string
	Date      string
	TimeSlot  string
	Name      string
	UpdatedAt time.Time
}

// Flow owns all dialogue states, keyed by "tenantID:counterparty". The map
// is mutex-guarded because handlers run on arbitrary goroutines.
type Flow struct {
	mu     sync.Mutex
	states map[string]*DialogueState
	now    func() time.Time
}

func NewFlow() *Flow {
	return &Flow{
		states: make(map[string]*DialogueState),
		now:    time.Now,
	}
}

// Start opens the flow, skipping steps whose fields are already known from
// the surrounding conversation or channel profile. Re-asking for known data
// is the defect this skip logic exists to avoid.
func (f *Flow) Start(key, reason, name string) DialogueState {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := &DialogueState{
		Reason:    reason,
		Name:      name,
		UpdatedAt: f.now(),
	}
	if reason != "" {
		state.Step = StepAwaitingDate
	} else {
		state.Step = StepAwaitingReason
	}
	f.states[key] = state
	return *state
}

// Get returns a copy of the current state, or an idle default.
func (f *Flow) Get(key string) DialogueState {
	f.mu.Lock()
	defer f.mu.Unlock()

	if state, ok := f.states[key]; ok {
		return *state
	}
	return DialogueState{Step: StepIdle}
}

// Active reports whether a booking dialogue is in progress for the key.
func (f *Flow) Active(key string) bool {
	return f.Get(key).Step != StepIdle
}

func (f *Flow) SetReason(key, reason string) DialogueState {
	return f.merge(key, func(s *DialogueState) {
		s.Reason = reason
		s.Step = StepAwaitingDate
	})
}

func (f *Flow) SetDate(key, date string) DialogueState {
	return f.merge(key, func(s *DialogueState) {
		s.Date = date
		s.Step = StepAwaitingSlot
	})
}

func (f *Flow) SetTimeSlot(key, slot string) DialogueState {
	return f.merge(key, func(s *DialogueState) {
		s.TimeSlot = slot
		if s.Name != "" {
			s.Step = StepAwaitingConfirm
		} else {
			s.Step = StepAwaitingName
		}
	})
}

func (f *Flow) SetName(key, name string) DialogueState {
	return f.merge(key, func(s *DialogueState) {
		s.Name = name
		s.Step = StepAwaitingConfirm
	})
}

// Clear deletes the state entirely; the next Get reports idle.
func (f *Flow) Clear(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, key)
}

// SweepStale removes states not updated within staleAfter. Cron entry
// point; also bounds memory growth from abandoned conversations.
func (f *Flow) SweepStale() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := f.now().Add(-staleAfter)
	removed := 0
	for key, state := range f.states {
		if state.UpdatedAt.Before(cutoff) {
			delete(f.states, key)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("swept stale booking dialogues")
	}
	return removed
}

// merge is a pure merge-and-transition: no domain validation of the value
// happens here, only dialogue position tracking.
func (f *Flow) merge(key string, apply func(*DialogueState)) DialogueState {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.states[key]
	if !ok {
		state = &DialogueState{Step: StepIdle}
		f.states[key] = state
	}
	apply(state)
	state.UpdatedAt = f.now()
	return *state
}
