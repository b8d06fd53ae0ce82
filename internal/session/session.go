// Package session stores per-user conversational state with a TTL.
//
// Dialogue state is transient by design: an abandoned flow expires on its
// own instead of accumulating forever, and a lost session is never worse
// than the user tapping /start again.
package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// DefaultTTL is how long an idle dialogue survives.
const DefaultTTL = 30 * time.Minute

// ErrNotFound is returned when a user has no live session.
var ErrNotFound = errors.New("session not found")

// Step names the dialogue position a user is at.
type Step string

const (
	StepIdle            Step = "idle"
	StepBrowsingMenu    Step = "browsing_menu"
	StepViewingCart     Step = "viewing_cart"
	StepChoosingType    Step = "choosing_type"
	StepEnteringAddress Step = "entering_address"
	StepEnteringPhone   Step = "entering_phone"
	StepEnteringComment Step = "entering_comment"
	StepChoosingPayment Step = "choosing_payment"
	StepConfirmingOrder Step = "confirming_order"
)

// State is the dialogue position plus the values collected so far.
type State struct {
	Step Step              `json:"step"`
	Data map[string]string `json:"data,omitempty"`
}

// NewState returns a State at the given step with an empty data bag.
func NewState(step Step) *State {
	return &State{Step: step, Data: make(map[string]string)}
}

// Set stores a collected value.
func (s *State) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// Get returns a collected value, empty when absent.
func (s *State) Get(key string) string {
	return s.Data[key]
}

// Store persists dialogue state keyed by Telegram user ID. Every write
// refreshes the TTL.
type Store interface {
	Get(ctx context.Context, telegramID int64) (*State, error)
	Set(ctx context.Context, telegramID int64, state *State) error
	Delete(ctx context.Context, telegramID int64) error
}
