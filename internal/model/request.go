package model

import "time"

type RequestStatus string

const (
	StatusCreated         RequestStatus = "created"
	StatusAssigned        RequestStatus = "assigned"
	StatusAcknowledged    RequestStatus = "acknowledged"
	StatusInProgress      RequestStatus = "in_progress"
	StatusAwaitingClosure RequestStatus = "awaiting_closure"
	StatusClosed          RequestStatus = "closed"
)

// Request is the central entity: a unit of field-service work tracked from
// creation to closure. Status is mutated only through the lifecycle engine.
type Request struct {
	ID     uint64 `gorm:"primaryKey" json:"id"`
	Code   string `gorm:"type:varchar(64);index" json:"code,omitempty"`
	TypeID uint64 `gorm:"index;not null" json:"type_id"`
	Scope  string `gorm:"type:text;not null" json:"scope"`

	SiteID       uint64  `gorm:"index;not null" json:"site_id"`
	SystemID     uint64  `gorm:"index;not null" json:"system_id"`
	SystemTypeID *uint64 `gorm:"index" json:"system_type_id,omitempty"`

	Status RequestStatus `gorm:"type:varchar(32);index;not null" json:"status"`

	TechnicianID *uint64 `gorm:"index" json:"technician_id,omitempty"`
	SupervisorID *uint64 `gorm:"index" json:"supervisor_id,omitempty"`

	// Tentative schedule: date and time are independently nullable and may be
	// reassigned any number of times while the request is open.
	TentativeDate *time.Time `gorm:"type:date" json:"tentative_date,omitempty"`
	TentativeTime *string    `gorm:"type:varchar(5)" json:"tentative_time,omitempty"`

	// Execution timestamps, each set exactly once, in sequence.
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`

	// Original filenames of the uploaded completion artifacts; the payloads
	// live in the artifacts table keyed by request id + kind.
	TicketFile *string `gorm:"type:varchar(255)" json:"ticket_file,omitempty"`
	ReportFile *string `gorm:"type:varchar(255)" json:"report_file,omitempty"`

	CreatedBy uint64     `gorm:"not null" json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	Type       RequestType `gorm:"foreignKey:TypeID" json:"type"`
	Site       Site        `gorm:"foreignKey:SiteID" json:"site"`
	System     System      `gorm:"foreignKey:SystemID" json:"system"`
	Technician *User       `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`
}
