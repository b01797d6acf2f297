package core

import (
	"strings"
	"time"
)

const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

const (
	SourceQuest    Source = "quest"
	SourceManual   Source = "manual"
	SourceQuickWin Source = "quick_win"
)

const (
	// ManualQuestID tags savings that were entered by hand rather than
	// produced by a quest.
	ManualQuestID = "manual"

	// MaxAmount is the upper bound (inclusive) of a single savings amount.
	MaxAmount = 100000

	MaxTitleLength = 120
	MaxNoteLength  = 280

	DefaultProofType = "note"
)

type (
	Period string

	Source string

	Proof struct {
		Type string `json:"type"`
		Note string `json:"note,omitempty"`
	}

	// SavingsEvent is one user-reported recurring saving.
	SavingsEvent struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		QuestID   string    `json:"questId"`
		Amount    float64   `json:"amount"`
		Period    Period    `json:"period"`
		Source    Source    `json:"source"`
		Proof     *Proof    `json:"proof,omitempty"`
		Verified  bool      `json:"verified"` // written by the server boundary only
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// NewEvent is the client-supplied part of a SavingsEvent on creation.
	NewEvent struct {
		Title   string  `json:"title"`
		QuestID string  `json:"questId"`
		Amount  float64 `json:"amount"`
		Period  Period  `json:"period"`
		Source  Source  `json:"source,omitempty"`
		Proof   *Proof  `json:"proof,omitempty"`
	}

	// ImpactAggregate is the server-computed per-user summary. It is an
	// eventually consistent cache and may lag behind the events.
	ImpactAggregate struct {
		ImpactAnnualEstimated float64    `json:"impactAnnualEstimated"`
		ImpactAnnualVerified  float64    `json:"impactAnnualVerified"`
		ProofsVerifiedCount   int        `json:"proofsVerifiedCount"`
		LastRecalcAt          *time.Time `json:"lastImpactRecalcAt,omitempty"`
	}

	// ListQuery filters and bounds a listing. Results are newest first.
	ListQuery struct {
		QuestID  string
		Verified *bool
		Limit    int
	}
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Multiplier returns how many times a period fits in a year.
func (p Period) Multiplier() float64 {
	if p == PeriodMonth {
		return 12
	}
	return 1
}

func (p Period) Valid() bool {
	return p == PeriodMonth || p == PeriodYear
}

func (s Source) Valid() bool {
	switch s {
	case SourceQuest, SourceManual, SourceQuickWin:
		return true
	}
	return false
}

// Annualize converts an amount in the given period to its yearly equivalent.
func Annualize(amount float64, period Period) float64 {
	return amount * period.Multiplier()
}

// Annualized returns the yearly value of the event.
func (e SavingsEvent) Annualized() float64 {
	return Annualize(e.Amount, e.Period)
}

// Clone returns a deep copy, so callers can keep snapshots that later
// mutations do not reach.
func (e SavingsEvent) Clone() SavingsEvent {
	if e.Proof != nil {
		p := *e.Proof
		e.Proof = &p
	}
	return e
}

// Normalize trims text fields and fills defaults for optional fields.
func (n NewEvent) Normalize() NewEvent {
	n.Title = strings.TrimSpace(n.Title)
	n.QuestID = strings.TrimSpace(n.QuestID)
	if n.QuestID == "" {
		n.QuestID = ManualQuestID
	}
	if n.Source == "" {
		if n.QuestID == ManualQuestID {
			n.Source = SourceManual
		} else {
			n.Source = SourceQuest
		}
	}
	n.Proof = normalizeProof(n.Proof)
	return n
}

// Event builds the record to persist. Verified is always false: only the
// server boundary may set it.
func (n NewEvent) Event(now time.Time) SavingsEvent {
	return SavingsEvent{
		Title:     n.Title,
		QuestID:   n.QuestID,
		Amount:    n.Amount,
		Period:    n.Period,
		Source:    n.Source,
		Proof:     n.Proof,
		Verified:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func normalizeProof(p *Proof) *Proof {
	if p == nil {
		return nil
	}
	out := Proof{Type: strings.TrimSpace(p.Type), Note: strings.TrimSpace(p.Note)}
	if out.Type == "" {
		out.Type = DefaultProofType
	}
	return &out
}

// Normalize clamps the limit into [1, MaxListLimit], defaulting to
// DefaultListLimit.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	return q
}

// Matches reports whether the event passes the query filters.
func (q ListQuery) Matches(e SavingsEvent) bool {
	if q.QuestID != "" && e.QuestID != q.QuestID {
		return false
	}
	if q.Verified != nil && e.Verified != *q.Verified {
		return false
	}
	return true
}

// IsZero reports whether the aggregate has never been computed.
func (a ImpactAggregate) IsZero() bool {
	return a.LastRecalcAt == nil && a.ImpactAnnualEstimated == 0 &&
		a.ImpactAnnualVerified == 0 && a.ProofsVerifiedCount == 0
}
