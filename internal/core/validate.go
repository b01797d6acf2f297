package core

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	amountRule = "gt=0,lte=100000"
	periodRule = "oneof=month year"
	sourceRule = "oneof=quest manual quick_win"
)

// ValidateAmount rejects non-finite, non-positive and oversized amounts.
// NaN and infinities fail both bounds.
func ValidateAmount(amount float64) error {
	return checkVar("amount", amount, amountRule, "must be a finite number in (0, 100000]")
}

func ValidatePeriod(p Period) error {
	return checkVar("period", string(p), periodRule, "must be month or year")
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("title", "must not be empty")
	}
	if len(title) > MaxTitleLength {
		return invalid("title", "too long")
	}
	return nil
}

func validateProof(p *Proof) error {
	if p == nil {
		return nil
	}
	if len(strings.TrimSpace(p.Note)) > MaxNoteLength {
		return invalid("proof.note", "too long")
	}
	return nil
}

// Validate checks a creation request against the write contract.
func (n NewEvent) Validate() error {
	n = n.Normalize()
	if err := validateTitle(n.Title); err != nil {
		return err
	}
	if err := ValidateAmount(n.Amount); err != nil {
		return err
	}
	if err := ValidatePeriod(n.Period); err != nil {
		return err
	}
	if err := checkVar("source", string(n.Source), sourceRule, "must be quest, manual or quick_win"); err != nil {
		return err
	}
	return validateProof(n.Proof)
}

func checkVar(field string, value any, rule, reason string) error {
	err := validate.Var(value, rule)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return invalid(field, reason)
	}
	// InvalidValidationError means the rule itself is broken.
	return err
}
