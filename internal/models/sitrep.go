package models

import "time"

// SitrepPriority orders situation reports by urgency.
type SitrepPriority string

const (
	PriorityRoutine   SitrepPriority = "routine"
	PriorityPriority  SitrepPriority = "priority"
	PriorityImmediate SitrepPriority = "immediate"
	PriorityFlash     SitrepPriority = "flash"
)

// Sitrep is a structured situation report following the five-paragraph
// format. The free-text sections come from operators or the analyzer
// collaborator; the engine never interprets them.
type Sitrep struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	ReportTime time.Time      `json:"report_time"`
	Location   string         `json:"location,omitempty"`
	Latitude   *float64       `json:"latitude,omitempty"`
	Longitude  *float64       `json:"longitude,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	Reporter   string         `json:"reporter,omitempty"`

	Situation      string `json:"situation,omitempty"`
	Mission        string `json:"mission,omitempty"`
	Execution      string `json:"execution,omitempty"`
	AdminLogistics string `json:"admin_logistics,omitempty"`
	CommandSignal  string `json:"command_signal,omitempty"`

	Source   string         `json:"source"`
	Priority SitrepPriority `json:"priority"`
	Active   bool           `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
