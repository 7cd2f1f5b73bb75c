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

package metrics

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled     bool
	ServiceName string
	// Provider defaults to the global meter provider
	Provider metric.MeterProvider
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates the gateway meter. A disabled meter records into the noop
// provider so instruments stay safe to call.
func New(cfg Config) *Meter {
	if !cfg.Enabled {
		return &Meter{meter: noop.NewMeterProvider().Meter("whatsgate")}
	}
	provider := cfg.Provider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	return &Meter{meter: provider.Meter(cfg.ServiceName)}
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// CreateUpDownCounter creates a new up/down counter metric
func (m *Meter) CreateUpDownCounter(name, description string) (metric.Int64UpDownCounter, error) {
	counter, err := m.meter.Int64UpDownCounter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create up/down counter %s: %w", name, err)
	}
	return counter, nil
}

// Instruments holds the gateway's domain metrics
type Instruments struct {
	Validations       metric.Int64Counter
	ProbeDuration     metric.Float64Histogram
	HealthTransitions metric.Int64Counter
	Notifications     metric.Int64Counter
	WebhooksReceived  metric.Int64Counter

	TrackedCredentials metric.Int64UpDownCounter
}

// NewInstruments creates every domain instrument on m
func NewInstruments(m *Meter) (*Instruments, error) {
	var (
		in  Instruments
		err error
	)
	if in.Validations, err = m.CreateCounter("whatsgate.validations", "Credential validations by outcome"); err != nil {
		return nil, err
	}
	if in.ProbeDuration, err = m.CreateHistogram("whatsgate.probe.duration", "Provider probe latency", "ms"); err != nil {
		return nil, err
	}
	if in.HealthTransitions, err = m.CreateCounter("whatsgate.health.transitions", "Credential health status changes"); err != nil {
		return nil, err
	}
	if in.Notifications, err = m.CreateCounter("whatsgate.notifications", "Health notification deliveries by sink and result"); err != nil {
		return nil, err
	}
	if in.WebhooksReceived, err = m.CreateCounter("whatsgate.webhooks", "Inbound webhook deliveries by result"); err != nil {
		return nil, err
	}
	if in.TrackedCredentials, err = m.CreateUpDownCounter("whatsgate.health.tracked", "Credential records held by the health monitor"); err != nil {
		return nil, err
	}
	return &in, nil
}

// NoopInstruments returns instruments that record nothing
func NoopInstruments() *Instruments {
	in, err := NewInstruments(New(Config{}))
	if err != nil {
		panic(err)
	}
	return in
}
