package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to JobStatus }{
		{JobStatusPending, JobStatusQueued},
		{JobStatusPending, JobStatusFailed},
		{JobStatusQueued, JobStatusProcessing},
		{JobStatusQueued, JobStatusFailed},
		{JobStatusQueued, JobStatusCancelled},
		{JobStatusProcessing, JobStatusCompleted},
		{JobStatusProcessing, JobStatusFailed},
		{JobStatusProcessing, JobStatusCancelled},
	}
	for _, edge := range allowed {
		assert.True(t, CanTransition(edge.from, edge.to), "%s -> %s should be legal", edge.from, edge.to)
	}

	denied := []struct{ from, to JobStatus }{
		{JobStatusPending, JobStatusProcessing},
		{JobStatusPending, JobStatusCompleted},
		{JobStatusPending, JobStatusCancelled},
		{JobStatusQueued, JobStatusCompleted},
		{JobStatusProcessing, JobStatusQueued},
		{JobStatusCompleted, JobStatusProcessing},
		{JobStatusFailed, JobStatusQueued},
		{JobStatusCancelled, JobStatusProcessing},
		{JobStatusCompleted, JobStatusFailed},
	}
	for _, edge := range denied {
		assert.False(t, CanTransition(edge.from, edge.to), "%s -> %s should be illegal", edge.from, edge.to)
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	all := []JobStatus{
		JobStatusPending, JobStatusQueued, JobStatusProcessing,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled,
	}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "terminal %s must not transition to %s", from, to)
		}
	}
}

func TestJobErrorList_RoundTrip(t *testing.T) {
	list := JobErrorList{
		{RowIndex: 3, Message: "missing required ratio"},
		{RowIndex: 7, Message: "not a finite number"},
	}

	value, err := list.Value()
	require.NoError(t, err)

	var decoded JobErrorList
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, list, decoded)
}

func TestJobErrorList_ScanNil(t *testing.T) {
	var list JobErrorList
	require.NoError(t, list.Scan(nil))
	assert.Empty(t, list)
}

func TestProgressPercentage(t *testing.T) {
	job := &BulkJob{TotalRows: 200, ProcessedRows: 50}
	assert.Equal(t, 25.0, job.ProgressPercentage())

	empty := &BulkJob{}
	assert.Equal(t, 0.0, empty.ProgressPercentage())
}

func TestPriorityWeight(t *testing.T) {
	assert.Equal(t, int64(3), PriorityHigh.Weight())
	assert.Equal(t, int64(2), PriorityMedium.Weight())
	assert.Equal(t, int64(1), PriorityLow.Weight())
}
