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

// Package errcode defines the machine-readable failures returned by the
// gateway's public operations.
package errcode

import (
	"errors"
	"fmt"
)

// Input errors
const (
	InvalidWebhookPayload = "INVALID_WEBHOOK_PAYLOAD"
	PhoneNumberIDNotFound = "PHONE_NUMBER_ID_NOT_FOUND"
	InvalidCredentials    = "INVALID_CREDENTIALS"
)

// Not-found errors
const (
	TenantNotFound           = "TENANT_NOT_FOUND"
	WhatsAppSettingsNotFound = "WHATSAPP_SETTINGS_NOT_FOUND"
	CredentialsNotFound      = "CREDENTIALS_NOT_FOUND"
)

// Verification errors
const (
	WebhookVerificationFailed = "WEBHOOK_VERIFICATION_FAILED"
	InvalidSignature          = "INVALID_SIGNATURE"
)

// Infrastructure errors
const (
	RoutingError      = "ROUTING_ERROR"
	RegistrationError = "REGISTRATION_ERROR"
	ValidationError   = "VALIDATION_ERROR"
	StorageError      = "STORAGE_ERROR"
	EncryptionError   = "ENCRYPTION_ERROR"
)

// Error is a failure carrying a machine code and a human message
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with code and message
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with code and message caused by err
func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails attaches structured details
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Code returns the machine code of err, or "" when err carries none
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries code
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}
