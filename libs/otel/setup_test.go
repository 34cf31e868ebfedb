package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSamplerFollowsRatio(t *testing.T) {
	assert.Contains(t, Config{SampleRatio: 1}.Sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Config{SampleRatio: 0}.Sampler().Description(), "AlwaysOffSampler")
	assert.Contains(t, Config{SampleRatio: 0.25}.Sampler().Description(), "TraceIDRatioBased{0.25}")
}

func TestAttributesSkipEmptyValues(t *testing.T) {
	attrs := Config{ServiceName: "booking-service"}.Attributes()
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.String("service.name", "booking-service"), attrs[0])

	full := attribute.NewSet(Config{
		ServiceName:    "booking-service",
		ServiceVersion: "1.4.0",
		Environment:    "staging",
		ClinicTimezone: "Asia/Ho_Chi_Minh",
	}.Attributes()...)
	v, ok := full.Value("clinic.timezone")
	require.True(t, ok)
	assert.Equal(t, "Asia/Ho_Chi_Minh", v.AsString())
	v, ok = full.Value("deployment.environment")
	require.True(t, ok)
	assert.Equal(t, "staging", v.AsString())
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "booking-service"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
