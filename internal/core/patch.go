package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventPatch is the whitelist of client-editable fields. Anything not
// listed here, verified and createdAt in particular, cannot be expressed.
type EventPatch struct {
	Title  *string
	Amount *float64
	Period *Period
	Proof  *Proof
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.Amount == nil && p.Period == nil && p.Proof == nil
}

// Validate re-checks the fields present in the patch.
func (p EventPatch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Amount != nil {
		if err := ValidateAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.Period != nil {
		if err := ValidatePeriod(*p.Period); err != nil {
			return err
		}
	}
	return validateProof(p.Proof)
}

// ApplyTo returns e with the patch applied and UpdatedAt set to now.
func (p EventPatch) ApplyTo(e SavingsEvent, now time.Time) SavingsEvent {
	e = e.Clone()
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Period != nil {
		e.Period = *p.Period
	}
	if p.Proof != nil {
		e.Proof = normalizeProof(p.Proof)
	}
	e.UpdatedAt = now
	return e
}

// PatchFromFields builds a patch out of loosely typed input (decoded JSON,
// CLI key=value pairs). Keys outside the whitelist are dropped without
// error. Values of whitelisted keys must have a usable type.
func PatchFromFields(fields map[string]any) (EventPatch, error) {
	var p EventPatch
	for k, v := range fields {
		switch k {
		case "title":
			s, ok := v.(string)
			if !ok {
				return EventPatch{}, invalid("title", "must be a string")
			}
			p.Title = &s
		case "amount":
			f, err := toFloat(v)
			if err != nil {
				return EventPatch{}, invalid("amount", err.Error())
			}
			p.Amount = &f
		case "period":
			s, ok := v.(string)
			if !ok {
				return EventPatch{}, invalid("period", "must be a string")
			}
			period := Period(s)
			p.Period = &period
		case "proof":
			proof, err := toProof(v)
			if err != nil {
				return EventPatch{}, err
			}
			p.Proof = proof
		}
	}
	return p, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return ParseAmount(n)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toProof(v any) (*Proof, error) {
	switch p := v.(type) {
	case Proof:
		return &p, nil
	case *Proof:
		return p, nil
	case string:
		return &Proof{Type: DefaultProofType, Note: p}, nil
	case map[string]any:
		out := &Proof{}
		if t, ok := p["type"].(string); ok {
			out.Type = t
		}
		if n, ok := p["note"].(string); ok {
			out.Note = n
		}
		return out, nil
	default:
		return nil, invalid("proof", "must be an object or a note")
	}
}

// FormatAmount renders an amount without trailing zeros.
func FormatAmount(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}
