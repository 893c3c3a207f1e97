package domain

import (
	"errors"
	"time"

	"github.com/artpar/simplets/internal/core/simplet"
	"github.com/google/uuid"
)

// =============================================================================
// Deployment Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Deployment Status
// =============================================================================

type DeploymentStatus string

const (
	StatusCreated  DeploymentStatus = "created"
	StatusStarting DeploymentStatus = "starting"
	StatusRunning  DeploymentStatus = "running"
	StatusFailed   DeploymentStatus = "failed"
	StatusStopped  DeploymentStatus = "stopped"
	StatusRemoved  DeploymentStatus = "removed"
)

// =============================================================================
// Deployment
// =============================================================================

// Deployment is the ledger record of one deployment attempt.
type Deployment struct {
	ID           string           `json:"id"`
	RegistryKey  string           `json:"registry_key"`
	Service      simplet.Kind     `json:"service"`
	Identity     string           `json:"identity"`
	Status       DeploymentStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewDeployment creates a record in the starting state.
func NewDeployment(kind simplet.Kind, identity string) *Deployment {
	now := time.Now().UTC()
	return &Deployment{
		ID:          uuid.New().String(),
		RegistryKey: simplet.RegistryKey(kind, identity),
		Service:     kind,
		Identity:    identity,
		Status:      StatusStarting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition attempts to transition the deployment to a new status.
func (d *Deployment) Transition(to DeploymentStatus) error {
	if err := ValidateTransition(d.Status, to); err != nil {
		return err
	}

	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// TransitionToFailed transitions to failed status with an error message.
func (d *Deployment) TransitionToFailed(errorMessage string) error {
	if err := d.Transition(StatusFailed); err != nil {
		return err
	}
	d.ErrorMessage = errorMessage
	return nil
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed state transitions of a stack.
// Stop may be repeated; removal is terminal.
var validTransitions = map[DeploymentStatus][]DeploymentStatus{
	StatusCreated:  {StatusStarting},
	StatusStarting: {StatusRunning, StatusFailed},
	StatusRunning:  {StatusStopped, StatusRemoved},
	StatusFailed:   {StatusStopped, StatusRemoved},
	StatusStopped:  {StatusStopped, StatusRemoved},
	StatusRemoved:  {},
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to DeploymentStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}
