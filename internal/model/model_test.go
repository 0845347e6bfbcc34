package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetDefaults(t *testing.T) {
	var target Target

	assert.Equal(t, ProtocolHTTP, target.ProbeProtocol())
	assert.Equal(t, 80, target.ProbePort())
	assert.Equal(t, "/", target.ProbePath())
	assert.Equal(t, 1, target.Replicas())
	assert.True(t, target.IsDefault())
	assert.Equal(t, "", target.Region())
}

func TestTargetNormalization(t *testing.T) {
	target := Target{Protocol: "HTTPS", Port: 8443, Path: "healthz", Weight: 3, Location: "eu"}

	assert.Equal(t, ProtocolHTTPS, target.ProbeProtocol())
	assert.Equal(t, 8443, target.ProbePort())
	assert.Equal(t, "/healthz", target.ProbePath())
	assert.Equal(t, 3, target.Replicas())
	assert.False(t, target.IsDefault())
	assert.Equal(t, "EU", target.Region())

	assert.Equal(t, 1, Target{Weight: -4}.Replicas())
}

func TestHealthyRecordMapOrder(t *testing.T) {
	m := NewHealthyRecordMap()
	m.Declare("www")
	m.Add("api", Target{Address: "10.0.0.1"})
	m.Add("www", Target{Address: "10.0.0.2"})
	m.Add("api", Target{Address: "10.0.0.1"})
	m.Declare("api")
	m.Declare("empty")

	assert.Equal(t, []string{"www", "api", "empty"}, m.Names())
	assert.Equal(t, 3, m.Len())
	assert.Len(t, m.Targets("api"), 2, "duplicates are kept")
	assert.Empty(t, m.Targets("empty"))
	assert.Empty(t, m.Targets("missing"))
}
