package leads

import (
	"strings"
	"time"
)

// FormType selects the form-specific field mapping of a lead.
type FormType string

const (
	FormCondo  FormType = "condo"
	FormLanded FormType = "landed"
	FormHDB    FormType = "hdb"
	FormOther  FormType = "other"
)

// FormTypeOf maps a submitted form_type onto a known FormType.
func FormTypeOf(raw string) FormType {
	switch FormType(strings.ToLower(strings.TrimSpace(raw))) {
	case FormCondo:
		return FormCondo
	case FormLanded:
		return FormLanded
	case FormHDB:
		return FormHDB
	default:
		return FormOther
	}
}

// Lead is a captured contact record from a property form submission.
type Lead struct {
	ID          string    `json:"id"`
	FormType    string    `json:"form_type"`
	SourceURL   string    `json:"source_url"`
	IP          string    `json:"ip"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email"`
	IsVerified  bool      `json:"is_verified"`
	IsSent      bool      `json:"is_sent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fields is the fixed, validated part of a lead submission.
type Fields struct {
	FormType    string `json:"form_type" validate:"required"`
	SourceURL   string `json:"source_url" validate:"required,url"`
	IP          string `json:"ip" validate:"required,ip"`
	Name        string `json:"name" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
}

// Field is one form-specific key/value pair stored as a lead detail.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ExtraFields keeps form-specific fields in submission order.
type ExtraFields []Field

// Get returns the value stored under key.
func (e ExtraFields) Get(key string) (string, bool) {
	for _, f := range e {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Storable returns the fields that may be persisted as details, dropping the
// reserved control keys and keeping submission order.
func (e ExtraFields) Storable() ExtraFields {
	out := make(ExtraFields, 0, len(e))
	for _, f := range e {
		if IsReserved(f.Key) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// IsReserved reports whether key is a control key that is never a detail.
func IsReserved(key string) bool {
	switch key {
	case KeyUserOTP, KeyWPOTP, KeyLeadID:
		return true
	}
	return false
}

// LeadView is a lead merged with its details into one flat mapping.
type LeadView map[string]any

// String returns the value under key rendered as a string.
func (v LeadView) String(key string) string {
	switch val := v[key].(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// NewView merges the base lead fields with its details; details win.
func NewView(lead *Lead, details ExtraFields) LeadView {
	view := LeadView{
		"id":           lead.ID,
		"form_type":    lead.FormType,
		"source_url":   lead.SourceURL,
		"ip":           lead.IP,
		"name":         lead.Name,
		"phone_number": lead.PhoneNumber,
		"email":        lead.Email,
		"is_verified":  lead.IsVerified,
		"is_sent":      lead.IsSent,
		"created_at":   lead.CreatedAt,
		"updated_at":   lead.UpdatedAt,
	}
	for _, d := range details {
		view[d.Key] = d.Value
	}
	return view
}

// ListFilter pages through stored leads.
type ListFilter struct {
	Limit  int
	Offset int
}
