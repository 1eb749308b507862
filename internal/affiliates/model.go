package affiliates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the lifecycle states of an affiliate partner.
type Status string

const (
	// StatusActive marks an approved, earning affiliate.
	StatusActive Status = "ACTIVE"
	// StatusPending marks an affiliate awaiting approval.
	StatusPending Status = "PENDING"
	// StatusInactive marks a dormant affiliate.
	StatusInactive Status = "INACTIVE"
	// StatusSuspended marks an affiliate blocked by an administrator.
	StatusSuspended Status = "SUSPENDED"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidStatus indicates a status outside the supported set.
	ErrInvalidStatus = errors.New("affiliates: invalid status")
	// ErrInvalidAffiliateID indicates that an affiliate identifier is empty or exceeds storage bounds.
	ErrInvalidAffiliateID = errors.New("affiliates: invalid affiliate id")
)

// ParseStatus normalizes raw input case-insensitively into a Status.
func ParseStatus(rawInput string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(rawInput))) {
	case StatusActive:
		return StatusActive, nil
	case StatusPending:
		return StatusPending, nil
	case StatusInactive:
		return StatusInactive, nil
	case StatusSuspended:
		return StatusSuspended, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

// Label returns the title-case form shown to people.
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(string(s))
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// String returns the canonical wire value.
func (s Status) String() string {
	return string(s)
}

// AffiliateID represents a validated affiliate identifier.
type AffiliateID string

// NewAffiliateID validates raw input and returns an AffiliateID.
func NewAffiliateID(rawInput string) (AffiliateID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAffiliateID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAffiliateID, maxIdentifierLength)
	}
	return AffiliateID(trimmed), nil
}

// String returns the underlying string identifier.
func (id AffiliateID) String() string {
	return string(id)
}

// Record is a persisted affiliate partner together with its performance metrics.
type Record struct {
	ID             string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Name           string     `gorm:"column:name;size:320;not null" json:"name"`
	Email          string     `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	Status         Status     `gorm:"column:status;size:16;not null;default:'ACTIVE';index" json:"status"`
	Revenue        float64    `gorm:"column:revenue;not null;default:0" json:"revenue"`
	Clicks         int64      `gorm:"column:clicks;not null;default:0" json:"clicks"`
	ConversionRate float64    `gorm:"column:conversion_rate;not null;default:0" json:"conversionRate"`
	JoinDate       time.Time  `gorm:"column:join_date;not null;index" json:"joinDate"`
	ApprovedAt     *time.Time `gorm:"column:approved_at" json:"approvedAt"`
	SuspendedAt    *time.Time `gorm:"column:suspended_at" json:"suspendedAt"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "affiliates"
}

// InitialMetrics carries the performance numbers supplied when an affiliate is created.
type InitialMetrics struct {
	Revenue        float64 `json:"revenue"`
	Clicks         int64   `json:"clicks"`
	ConversionRate float64 `json:"conversionRate"`
}

// CreateRequest is the payload accepted by the data source when creating an affiliate.
type CreateRequest struct {
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Status         Status         `json:"status"`
	InitialMetrics InitialMetrics `json:"initialMetrics"`
}

// Validate checks the request against the record invariants.
func (r CreateRequest) Validate() error {
	fields := validateIdentity(r.Name, r.Email)
	if _, err := ParseStatus(string(r.Status)); err != nil {
		fields.add(fieldStatus, messageStatusInvalid)
	}
	validateMetrics(fields, r.InitialMetrics)
	return fields.err()
}

// StatusPatch is the direct field patch used to move an affiliate back to a plain status.
// ClearApproval and ClearSuspension are set when the payload carried an explicit null.
type StatusPatch struct {
	Status          Status
	ClearApproval   bool
	ClearSuspension bool
}

// Summary aggregates the affiliate base for KPI display.
type Summary struct {
	TotalAffiliates       int64   `json:"totalAffiliates"`
	ActiveAffiliates      int64   `json:"activeAffiliates"`
	TotalRevenue          float64 `json:"totalRevenue"`
	TotalClicks           int64   `json:"totalClicks"`
	AverageConversionRate float64 `json:"averageConversionRate"`
}
