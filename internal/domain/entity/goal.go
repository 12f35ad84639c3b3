package entity

import "github.com/google/uuid"

// Goal is the immutable input to a single agent run: a free-form
// description plus an opaque constraints mapping. Created once per run.
type Goal struct {
	id          string
	description string
	constraints map[string]interface{}
}

// NewGoal creates a Goal, minting a run-scoped ID via uuid.
func NewGoal(description string, constraints map[string]interface{}) (*Goal, error) {
	if description == "" {
		return nil, ErrInvalidGoalDescription
	}
	if constraints == nil {
		constraints = map[string]interface{}{}
	}
	return &Goal{
		id:          uuid.NewString(),
		description: description,
		constraints: constraints,
	}, nil
}

// ReconstructGoal rebuilds a Goal from persisted fields (replay path).
func ReconstructGoal(id, description string, constraints map[string]interface{}) (*Goal, error) {
	if id == "" {
		return nil, ErrInvalidGoalID
	}
	if description == "" {
		return nil, ErrInvalidGoalDescription
	}
	if constraints == nil {
		constraints = map[string]interface{}{}
	}
	return &Goal{id: id, description: description, constraints: constraints}, nil
}

func (g *Goal) ID() string { return g.id }

func (g *Goal) Description() string { return g.description }

// Constraints returns a defensive copy of the opaque constraints mapping.
func (g *Goal) Constraints() map[string]interface{} {
	out := make(map[string]interface{}, len(g.constraints))
	for k, v := range g.constraints {
		out[k] = v
	}
	return out
}
