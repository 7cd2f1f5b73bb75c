package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewInstruments(t *testing.T) {
	in, err := NewInstruments(New(Config{Enabled: true, ServiceName: "whatsgate", Provider: noop.NewMeterProvider()}))
	require.NoError(t, err)
	assert.NotNil(t, in.Validations)
	assert.NotNil(t, in.ProbeDuration)
	assert.NotNil(t, in.TrackedCredentials)

	assert.NotPanics(t, func() {
		ctx := context.Background()
		in.Validations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", true)))
		in.ProbeDuration.Record(ctx, 12.5)
		in.TrackedCredentials.Add(ctx, 1)
		in.TrackedCredentials.Add(ctx, -1)
	})
}

func TestNoopInstruments(t *testing.T) {
	in := NoopInstruments()
	assert.NotNil(t, in.Notifications)
	assert.NotNil(t, in.WebhooksReceived)
}
