package models

import (
	"errors"
	"fmt"
)

// Subtask is a unit of work inside a Ticket.
type Subtask struct {
	ID   int    `json:"id" jsonschema:"description=Unique identifier for the subtask"`
	Name string `json:"name" jsonschema:"description=Informative title of the subtask"`
}

// Ticket is an action item extracted from a meeting transcript.
type Ticket struct {
	ID           int       `json:"id" jsonschema:"required,description=Unique identifier for the ticket"`
	Name         string    `json:"name" validate:"required" jsonschema:"description=Title of the ticket"`
	Description  string    `json:"description" jsonschema:"description=Detailed description of the ticket"`
	Priority     string    `json:"priority" validate:"omitempty,oneof=low medium high" jsonschema:"description=Priority level"`
	Assignees    []string  `json:"assignees" jsonschema:"description=List of users assigned to the ticket"`
	Subtasks     []Subtask `json:"subtasks" jsonschema:"nullable,description=List of subtasks associated with the ticket"`
	Dependencies []int     `json:"dependencies" jsonschema:"nullable,description=List of ticket IDs that this ticket depends on"`
}

// Validate rejects a ticket that depends on itself.
func (t *Ticket) Validate() error {
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("ticket %d depends on itself", t.ID)
		}
	}
	return nil
}

// ActionItems groups every ticket found in one transcript.
type ActionItems struct {
	Items []Ticket `json:"items" validate:"dive"`
}

// Validate rejects duplicate ticket ids and dependencies on unknown tickets.
func (a *ActionItems) Validate() error {
	ids := make(map[int]bool, len(a.Items))
	for _, t := range a.Items {
		if ids[t.ID] {
			return fmt.Errorf("ticket id %d is used twice", t.ID)
		}
		ids[t.ID] = true
	}
	var errs []error
	for i := range a.Items {
		if err := a.Items[i].Validate(); err != nil {
			errs = append(errs, err)
		}
		for _, dep := range a.Items[i].Dependencies {
			if !ids[dep] {
				errs = append(errs, fmt.Errorf("ticket %d depends on unknown ticket %d", a.Items[i].ID, dep))
			}
		}
	}
	return errors.Join(errs...)
}
