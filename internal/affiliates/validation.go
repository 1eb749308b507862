package affiliates

import (
	"regexp"
	"sort"
	"strings"
)

const (
	fieldName           = "name"
	fieldEmail          = "email"
	fieldStatus         = "status"
	fieldRevenue        = "revenue"
	fieldClicks         = "clicks"
	fieldConversionRate = "conversionRate"

	messageNameRequired     = "Name is required"
	messageEmailRequired    = "Email is required"
	messageEmailInvalid     = "Email is invalid"
	messageStatusInvalid    = "Status is invalid"
	messageRevenueNegative  = "Revenue must not be negative"
	messageClicksNegative   = "Clicks must not be negative"
	messageConversionBounds = "Conversion rate must be between 0 and 100"

	maxConversionRate = 100
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidationError reports field-level problems detected before a request reaches the data source.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "affiliates: validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "affiliates: validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message recorded for the field, if any.
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.Fields[name]
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: map[string]string(f)}
}

// ValidEmail reports whether the value matches the simple local@domain.tld pattern.
func ValidEmail(value string) bool {
	return emailPattern.MatchString(strings.TrimSpace(value))
}

func validateIdentity(name, email string) fieldErrors {
	fields := fieldErrors{}
	if strings.TrimSpace(name) == "" {
		fields.add(fieldName, messageNameRequired)
	}
	switch {
	case strings.TrimSpace(email) == "":
		fields.add(fieldEmail, messageEmailRequired)
	case !ValidEmail(email):
		fields.add(fieldEmail, messageEmailInvalid)
	}
	return fields
}

func validateMetrics(fields fieldErrors, metrics InitialMetrics) {
	if metrics.Revenue < 0 {
		fields.add(fieldRevenue, messageRevenueNegative)
	}
	if metrics.Clicks < 0 {
		fields.add(fieldClicks, messageClicksNegative)
	}
	if metrics.ConversionRate < 0 || metrics.ConversionRate > maxConversionRate {
		fields.add(fieldConversionRate, messageConversionBounds)
	}
}

// Draft is unvalidated form input for a new affiliate.
type Draft struct {
	Name           string
	Email          string
	Status         string
	Revenue        float64
	Clicks         int64
	ConversionRate float64
}

// NewCreateRequest validates the draft and packages it for the data source.
// An empty status defaults to ACTIVE. Failures are returned as *ValidationError.
func NewCreateRequest(draft Draft) (CreateRequest, error) {
	fields := validateIdentity(draft.Name, draft.Email)

	status := StatusActive
	if strings.TrimSpace(draft.Status) != "" {
		parsed, err := ParseStatus(draft.Status)
		if err != nil {
			fields.add(fieldStatus, messageStatusInvalid)
		} else {
			status = parsed
		}
	}

	metrics := InitialMetrics{
		Revenue:        draft.Revenue,
		Clicks:         draft.Clicks,
		ConversionRate: draft.ConversionRate,
	}
	validateMetrics(fields, metrics)

	if err := fields.err(); err != nil {
		return CreateRequest{}, err
	}

	return CreateRequest{
		Name:           strings.TrimSpace(draft.Name),
		Email:          strings.TrimSpace(draft.Email),
		Status:         status,
		InitialMetrics: metrics,
	}, nil
}
