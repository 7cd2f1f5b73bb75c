// Copyright 2026 The Whatsgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package health continuously re-validates tenants' WhatsApp credentials
// and alerts on status changes.
package health

import (
	"time"

	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/errcode"
)

// Status is the health classification of one set of credentials
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusExpired Status = "expired"
	StatusInvalid Status = "invalid"
)

// Issue is a problem reported by the last check
type Issue = credential.Issue

// Metrics tracks calls made for one credential set. SuccessRate is the
// outcome of the latest check (100 or 0), not a trailing average.
type Metrics struct {
	ResponseTimeMs     int64      `json:"responseTime"`
	SuccessRate        float64    `json:"successRate"`
	TotalCalls         int64      `json:"totalCalls"`
	FailedCalls        int64      `json:"failedCalls"`
	LastSuccessfulCall *time.Time `json:"lastSuccessfulCall,omitempty"`
}

// CredentialHealth is the monitor's record for one (tenant, phone) pair
type CredentialHealth struct {
	TenantID        string     `json:"tenantId"`
	PhoneNumberID   string     `json:"phoneNumberId"`
	Status          Status     `json:"status"`
	LastCheck       time.Time  `json:"lastCheck"`
	NextCheck       time.Time  `json:"nextCheck"`
	Issues          []Issue    `json:"issues"`
	Metrics         Metrics    `json:"metrics"`
	DaysUntilExpiry *int       `json:"daysUntilExpiry,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

func (h CredentialHealth) clone() CredentialHealth {
	h.Issues = append([]Issue(nil), h.Issues...)
	if h.Metrics.LastSuccessfulCall != nil {
		t := *h.Metrics.LastSuccessfulCall
		h.Metrics.LastSuccessfulCall = &t
	}
	if h.DaysUntilExpiry != nil {
		d := *h.DaysUntilExpiry
		h.DaysUntilExpiry = &d
	}
	if h.ExpiresAt != nil {
		t := *h.ExpiresAt
		h.ExpiresAt = &t
	}
	return h
}

// Classify derives a status from a validation result. Expiry overrides
// every other outcome; a token close to expiry is at least a warning.
func Classify(res credential.ValidationResult) Status {
	switch res.Code {
	case errcode.EncryptionError, errcode.InvalidCredentials:
		return StatusInvalid
	}

	days := res.DaysUntilExpiry
	if (days != nil && *days <= 0) || res.HasIssue(credential.IssueTokenExpired) {
		return StatusExpired
	}

	status := StatusHealthy
	switch {
	case len(res.Errors) > 0:
		status = StatusError
	case len(res.Warnings) > 0:
		status = StatusWarning
	}
	if status == StatusHealthy && days != nil && *days <= credential.ExpiryWarningDays {
		status = StatusWarning
	}
	return status
}

// issuesFor returns the issues to record for status, adding the expiry
// issue when the status was forced by the day count alone.
func issuesFor(status Status, res credential.ValidationResult) []Issue {
	issues := append([]Issue(nil), res.Issues...)
	if status == StatusExpired && !res.HasIssue(credential.IssueTokenExpired) {
		issues = append(issues, Issue{
			Type:     credential.ProbeExpiry,
			Code:     credential.IssueTokenExpired,
			Message:  "System user token has expired",
			Severity: credential.SeverityError,
		})
	}
	return issues
}

// Summary counts tracked credentials by status
type Summary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"byStatus"`
}
