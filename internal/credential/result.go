package credential

import (
	"time"
)

// Probe names
const (
	ProbeIdentity   = "identity"
	ProbeBusiness   = "business_account"
	ProbePermission = "permission"
	ProbeExpiry     = "expiry"
	ProbeConfig     = "configuration"
)

// Severity of an issue
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue codes reported by probes
const (
	IssueIdentityCheckFailed        = "IDENTITY_CHECK_FAILED"
	IssueBusinessAccountUnavailable = "BUSINESS_ACCOUNT_UNAVAILABLE"
	IssueTemplatePermissionMissing  = "TEMPLATE_PERMISSION_MISSING"
	IssueTokenInvalid               = "TOKEN_INVALID"
	IssueTokenExpiring              = "TOKEN_EXPIRING"
	IssueTokenExpired               = "TOKEN_EXPIRED"
	IssueTokenIntrospectionFailed   = "TOKEN_INTROSPECTION_FAILED"
	IssueLowQualityRating           = "LOW_QUALITY_RATING"
	IssueMissingField               = "MISSING_FIELD"
)

// MsgNotConfigured is the error reported for tenants without stored credentials
const MsgNotConfigured = "Credentials not configured"

// ExpiryWarningDays is how close to expiry a token starts warning
const ExpiryWarningDays = 7

// Issue is one problem found during validation
type Issue struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// ValidationResult is the outcome of validating one set of credentials.
// Code is set only when validation could not run to completion
// (not configured, unusable stored data, storage failure).
type ValidationResult struct {
	Valid           bool       `json:"valid"`
	PhoneNumberID   string     `json:"phoneNumberId,omitempty"`
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	BusinessName    string     `json:"businessName,omitempty"`
	VerifiedName    string     `json:"verifiedName,omitempty"`
	Status          string     `json:"status,omitempty"`
	QualityRating   string     `json:"qualityRating,omitempty"`
	Errors          []string   `json:"errors,omitempty"`
	Warnings        []string   `json:"warnings,omitempty"`
	Issues          []Issue    `json:"issues,omitempty"`
	Permissions     []string   `json:"permissions,omitempty"`
	LastValidated   time.Time  `json:"lastValidated"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	DaysUntilExpiry *int       `json:"daysUntilExpiry,omitempty"`
	Code            string     `json:"code,omitempty"`
}

func (r *ValidationResult) addError(probe, code, msg string) {
	r.Errors = append(r.Errors, msg)
	r.Issues = append(r.Issues, Issue{Type: probe, Code: code, Message: msg, Severity: SeverityError})
}

func (r *ValidationResult) addWarning(probe, code, msg string) {
	r.Warnings = append(r.Warnings, msg)
	r.Issues = append(r.Issues, Issue{Type: probe, Code: code, Message: msg, Severity: SeverityWarning})
}

// HasIssue reports whether any issue carries code
func (r ValidationResult) HasIssue(code string) bool {
	for _, is := range r.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

// clone deep-copies the slices so cached results cannot be mutated by callers
func (r ValidationResult) clone() ValidationResult {
	r.Errors = append([]string(nil), r.Errors...)
	r.Warnings = append([]string(nil), r.Warnings...)
	r.Issues = append([]Issue(nil), r.Issues...)
	r.Permissions = append([]string(nil), r.Permissions...)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		r.ExpiresAt = &t
	}
	if r.DaysUntilExpiry != nil {
		d := *r.DaysUntilExpiry
		r.DaysUntilExpiry = &d
	}
	return r
}
