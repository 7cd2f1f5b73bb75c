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

package logger

import "log/slog"

// Attribute keys shared by the access log, the monitor and the audit trail.
// Dashboards query these names, so keep them stable.
const (
	KeyTenantID      = "tenant_id"
	KeyPhoneNumberID = "phone_number_id"
	KeyDuration      = "duration_ms"
	KeyError         = "error"
)

// HTTP access attributes

func RequestID(id string) slog.Attr { return slog.String("request_id", id) }
func Method(method string) slog.Attr { return slog.String("method", method) }
func Path(path string) slog.Attr { return slog.String("path", path) }
func RemoteAddr(addr string) slog.Attr { return slog.String("remote_addr", addr) }
func UserAgent(ua string) slog.Attr { return slog.String("user_agent", ua) }
func StatusCode(code int) slog.Attr { return slog.Int("status_code", code) }

// Duration takes milliseconds
func Duration(ms int64) slog.Attr { return slog.Int64(KeyDuration, ms) }

// Routing attributes

func TenantID(id string) slog.Attr { return slog.String(KeyTenantID, id) }
func PhoneNumberID(id string) slog.Attr { return slog.String(KeyPhoneNumberID, id) }

// Credential health attributes

func Status(status string) slog.Attr { return slog.String("status", status) }
func PreviousStatus(status string) slog.Attr { return slog.String("previous_status", status) }
func Code(code string) slog.Attr { return slog.String("code", code) }

// Probe names the provider call, such as identity or expiry
func Probe(name string) slog.Attr { return slog.String("probe", name) }

// Sink names the notification channel
func Sink(name string) slog.Attr { return slog.String("sink", name) }

// Error renders err as a string; nil yields an empty value
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

func Component(name string) slog.Attr { return slog.String("component", name) }
func Operation(op string) slog.Attr { return slog.String("operation", op) }

// String is an escape hatch for one-off keys
func String(key, value string) slog.Attr { return slog.String(key, value) }
