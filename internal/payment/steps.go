package payment

import (
	"errors"
	"fmt"
)

type StepName string

const (
	StepValidate StepName = "validate"
	StepProcess  StepName = "process"
	StepVerify   StepName = "verify"
	StepComplete StepName = "complete"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
)

var ErrStepOutOfOrder = errors.New("processing step out of order")

type ProcessingStep struct {
	Name   StepName   `json:"name"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// Steps is the fixed validate, process, verify, complete sequence.
// It is not safe for concurrent use; Checkout guards it.
type Steps struct {
	items [4]ProcessingStep
}

func NewSteps() *Steps {
	return &Steps{items: [4]ProcessingStep{
		{Name: StepValidate, Label: "Validating payment details", Status: StepPending},
		{Name: StepProcess, Label: "Processing payment", Status: StepPending},
		{Name: StepVerify, Label: "Verifying transaction", Status: StepPending},
		{Name: StepComplete, Label: "Completing enrollment", Status: StepPending},
	}}
}

func (s *Steps) index(name StepName) int {
	for i := range s.items {
		if s.items[i].Name == name {
			return i
		}
	}
	return -1
}

// Activate moves a pending step to active once every earlier step has completed.
func (s *Steps) Activate(name StepName) error {
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%w: unknown step %q", ErrStepOutOfOrder, name)
	}
	if s.items[i].Status != StepPending {
		return fmt.Errorf("%w: %s is %s", ErrStepOutOfOrder, name, s.items[i].Status)
	}
	for j := 0; j < i; j++ {
		if s.items[j].Status != StepCompleted {
			return fmt.Errorf("%w: %s before %s completed", ErrStepOutOfOrder, name, s.items[j].Name)
		}
	}
	s.items[i].Status = StepActive
	return nil
}

func (s *Steps) Complete(name StepName) error {
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%w: unknown step %q", ErrStepOutOfOrder, name)
	}
	if s.items[i].Status != StepActive {
		return fmt.Errorf("%w: %s is %s", ErrStepOutOfOrder, name, s.items[i].Status)
	}
	s.items[i].Status = StepCompleted
	return nil
}

// SkipTo marks every step before name completed. Used when resuming a charge that already succeeded.
func (s *Steps) SkipTo(name StepName) {
	i := s.index(name)
	for j := 0; j < i; j++ {
		s.items[j].Status = StepCompleted
	}
}

func (s *Steps) Reset() {
	for i := range s.items {
		s.items[i].Status = StepPending
	}
}

func (s *Steps) Snapshot() []ProcessingStep {
	out := make([]ProcessingStep, len(s.items))
	copy(out, s.items[:])
	return out
}

// Active returns the step currently running, if any.
func (s *Steps) Active() (StepName, bool) {
	for _, it := range s.items {
		if it.Status == StepActive {
			return it.Name, true
		}
	}
	return "", false
}
