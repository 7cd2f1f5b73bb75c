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

package http

import "context"

type contextKey string

const (
	tenantIDKey      contextKey = "tenant_id"
	phoneNumberIDKey contextKey = "phone_number_id"
	accessLogKey     contextKey = "access_log"
)

// accessLog is filled in by handlers so the logging middleware can
// attribute a request to a tenant after routing.
type accessLog struct {
	tenantID      string
	phoneNumberID string
	outcome       string
}

func withAccessLog(ctx context.Context) (context.Context, *accessLog) {
	entry := &accessLog{}
	return context.WithValue(ctx, accessLogKey, entry), entry
}

func accessLogFrom(ctx context.Context) *accessLog {
	entry, _ := ctx.Value(accessLogKey).(*accessLog)
	return entry
}

// withRoute stores the resolved tenant and phone number on the context
func withRoute(ctx context.Context, tenantID, phoneNumberID string) context.Context {
	if entry := accessLogFrom(ctx); entry != nil {
		entry.tenantID, entry.phoneNumberID = tenantID, phoneNumberID
	}
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return context.WithValue(ctx, phoneNumberIDKey, phoneNumberID)
}

// setOutcome records how a webhook delivery ended for the access log
func setOutcome(ctx context.Context, outcome string) {
	if entry := accessLogFrom(ctx); entry != nil {
		entry.outcome = outcome
	}
}

// GetTenantID retrieves the routed Tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if val, ok := ctx.Value(tenantIDKey).(string); ok {
		return val
	}
	return ""
}

// GetPhoneNumberID retrieves the routed phone-number-id from context.
func GetPhoneNumberID(ctx context.Context) string {
	if val, ok := ctx.Value(phoneNumberIDKey).(string); ok {
		return val
	}
	return ""
}
