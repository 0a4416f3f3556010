package domain

import "time"

// Template is a named, categorized pipeline definition stored independently
// of execution. Executions created from a template copy its config, so
// updating or deleting the template never affects them.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`

	// Schedule is an optional cron expression; when set, the scheduler
	// triggers an execution of Config on that cadence.
	Schedule string `json:"schedule,omitempty"`

	Config    PipelineSpec `json:"config"`
	CreatedBy string       `json:"createdBy,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Config = *t.Config.Clone()
	return &out
}
