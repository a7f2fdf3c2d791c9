package model

import "time"

type Role string

const (
	RoleClient     Role = "client"
	RoleOperator   Role = "operator"
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleTechnician Role = "technician"
)

// Staff reports whether the role sees every request regardless of scope.
func (r Role) Staff() bool {
	return r == RoleOperator || r == RoleAdmin || r == RoleSupervisor
}

// FieldWorker reports whether users with this role can be assigned requests.
func (r Role) FieldWorker() bool {
	return r == RoleTechnician || r == RoleSupervisor
}

type Company struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Client struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CompanyID uint64    `gorm:"index;not null" json:"company_id"`
	Company   Company   `gorm:"foreignKey:CompanyID" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Site struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	ClientID  uint64    `gorm:"index;not null" json:"client_id"`
	Client    Client    `gorm:"foreignKey:ClientID" json:"client"`
	CreatedAt time.Time `json:"created_at"`
}

type SystemType struct {
	ID   uint64 `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(255);not null" json:"name"`
}

type System struct {
	ID           uint64      `gorm:"primaryKey" json:"id"`
	Name         string      `gorm:"type:varchar(255);not null" json:"name"`
	SystemTypeID *uint64     `gorm:"index" json:"system_type_id,omitempty"`
	SystemType   *SystemType `gorm:"foreignKey:SystemTypeID" json:"system_type,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Role         Role      `gorm:"type:varchar(32);index;not null" json:"role"`
	SupervisorID *uint64   `gorm:"index" json:"supervisor_id,omitempty"`
	ClientID     *uint64   `gorm:"index" json:"client_id,omitempty"`
	SiteID       *uint64   `gorm:"index" json:"site_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RequestType classifies a request. RequiresReport drives the finish guard:
// requests of such types cannot leave in_progress without a report artifact.
// ClientDefault marks the type applied to client-created requests.
type RequestType struct {
	ID             uint64 `gorm:"primaryKey" json:"id"`
	Name           string `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	RequiresReport bool   `gorm:"not null" json:"requires_report"`
	ClientDefault  bool   `gorm:"not null" json:"client_default"`
}
