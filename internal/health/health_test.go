package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/errcode"
)

func intp(v int) *int { return &v }

// TestPurpose: Validates the mapping from validation results to health statuses.
// Scope: Unit Test
// Security: Expired or undecryptable credentials are never reported as healthy
// Expected: Expiry overrides errors; imminent expiry raises healthy to warning.
// Test Case ID: HLT-01
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		res  credential.ValidationResult
		want Status
	}{
		{
			name: "healthy",
			res:  credential.ValidationResult{Valid: true, DaysUntilExpiry: intp(60)},
			want: StatusHealthy,
		},
		{
			name: "no expiry information",
			res:  credential.ValidationResult{Valid: true},
			want: StatusHealthy,
		},
		{
			name: "warnings only",
			res:  credential.ValidationResult{Valid: true, Warnings: []string{"Phone number quality rating is RED"}},
			want: StatusWarning,
		},
		{
			name: "expiring soon without warnings",
			res:  credential.ValidationResult{Valid: true, DaysUntilExpiry: intp(3)},
			want: StatusWarning,
		},
		{
			name: "errors",
			res:  credential.ValidationResult{Errors: []string{"Phone number lookup failed"}},
			want: StatusError,
		},
		{
			name: "expired day count overrides errors",
			res:  credential.ValidationResult{Errors: []string{"boom"}, DaysUntilExpiry: intp(0)},
			want: StatusExpired,
		},
		{
			name: "expired issue",
			res: credential.ValidationResult{
				Errors: []string{"System user token has expired"},
				Issues: []credential.Issue{{Code: credential.IssueTokenExpired, Severity: credential.SeverityError}},
			},
			want: StatusExpired,
		},
		{
			name: "undecryptable",
			res:  credential.ValidationResult{Code: errcode.EncryptionError, Errors: []string{"x"}},
			want: StatusInvalid,
		},
		{
			name: "incomplete",
			res:  credential.ValidationResult{Code: errcode.InvalidCredentials, Errors: []string{"x"}},
			want: StatusInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.res))
		})
	}
}

func TestIssuesFor_AddsExpiry(t *testing.T) {
	res := credential.ValidationResult{DaysUntilExpiry: intp(-2)}
	issues := issuesFor(Classify(res), res)
	if assert.Len(t, issues, 1) {
		assert.Equal(t, credential.IssueTokenExpired, issues[0].Code)
		assert.Equal(t, credential.SeverityError, issues[0].Severity)
	}

	res = credential.ValidationResult{Valid: true, DaysUntilExpiry: intp(40)}
	assert.Empty(t, issuesFor(Classify(res), res))
}

func TestCredentialHealth_CloneIsDeep(t *testing.T) {
	h := CredentialHealth{Issues: []Issue{{Code: "A"}}, DaysUntilExpiry: intp(5)}
	c := h.clone()
	c.Issues[0].Code = "B"
	*c.DaysUntilExpiry = 1

	assert.Equal(t, "A", h.Issues[0].Code)
	assert.Equal(t, 5, *h.DaysUntilExpiry)
}
