package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	integrity := &stubJob{name: "integrity_check"}
	retention := &stubJob{name: "outbox_retention"}
	registry, err := NewRegistry(integrity, nil, retention)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, integrity, jobs[0])
	assert.Same(t, retention, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "integrity_check"}, &stubJob{name: "integrity_check"})
	assert.ErrorContains(t, err, "registered twice")

	registry, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, registry.Register(&stubJob{name: "  "}))
	assert.Empty(t, registry.Jobs())
}
