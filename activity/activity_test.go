package activity

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := NewID("hetzner", "cx22", "worker-1")
	a := New(id)

	assert.Equal(t, id, a.ID())
	assert.True(t, a.IsFor(id))
	assert.Equal(t, "worker-1", a.Name())
	assert.Equal(t, Provisioning, a.CurrentPhase())
	assert.Equal(t, StatusOK, a.Status())
	require.NotNil(t, a.PhaseExecution(Provisioning))
	assert.Nil(t, a.PhaseExecution(Launching))
	assert.False(t, a.StartedAt().IsZero())
}

func TestNew_NameFallsBackToCloud(t *testing.T) {
	a := New(NewID("hetzner", "", ""))
	assert.Equal(t, "hetzner", a.Name())
}

func TestEnterIfNotAlready(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "worker-1"))

	assert.True(t, a.EnterIfNotAlready(Launching))
	assert.Equal(t, Launching, a.CurrentPhase())

	first := a.PhaseExecution(Launching)
	require.NotNil(t, first)

	assert.False(t, a.EnterIfNotAlready(Launching))
	assert.Equal(t, Launching, a.CurrentPhase())
	assert.Equal(t, first.StartedAt(), a.PhaseExecution(Launching).StartedAt())
}

func TestEnterIfNotAlready_NeverLeavesCompleted(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "worker-1"))
	require.True(t, a.EnterIfNotAlready(Completed))

	assert.False(t, a.EnterIfNotAlready(Launching))
	assert.False(t, a.EnterIfNotAlready(Operating))
	assert.Equal(t, Completed, a.CurrentPhase())
	assert.Nil(t, a.PhaseExecution(Launching))
}

func TestEnterIfNotAlready_Concurrent(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "worker-1"))

	var entered atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.EnterIfNotAlready(Operating) {
				entered.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), entered.Load())
}

func TestEnter(t *testing.T) {
	tests := []struct {
		name    string
		setup   []Phase
		enter   Phase
		wantErr error
	}{
		{
			name:  "next phase",
			enter: Launching,
		},
		{
			name:  "skip to completed",
			enter: Completed,
		},
		{
			name:    "re-enter current phase",
			setup:   []Phase{Launching},
			enter:   Launching,
			wantErr: ErrInvalidState,
		},
		{
			name:    "enter earlier phase",
			setup:   []Phase{Operating},
			enter:   Launching,
			wantErr: ErrInvalidState,
		},
		{
			name:    "unknown phase",
			enter:   Phase(42),
			wantErr: ErrUnknownPhase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(NewID("hetzner", "cx22", "worker-1"))
			for _, p := range tt.setup {
				require.NoError(t, a.Enter(p))
			}
			before := a.CurrentPhase()

			err := a.Enter(tt.enter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, a.CurrentPhase())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enter, a.CurrentPhase())
		})
	}
}

func TestAttach(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "worker-1"))

	require.NoError(t, a.Attach(Provisioning, NewAttachment(StatusWarn, "slow quota check")))
	assert.Equal(t, StatusWarn, a.Status())

	err := a.Attach(Operating, NewAttachment(StatusFail, "never entered"))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StatusWarn, a.Status())

	require.True(t, a.EnterIfNotAlready(Launching))
	require.NoError(t, a.Attach(Launching, NewErrorAttachment(StatusFail, errors.New("ssh refused\nretrying"))))

	exec := a.PhaseExecution(Launching)
	require.NotNil(t, exec)
	assert.Equal(t, StatusFail, exec.Status())
	attachments := exec.Attachments()
	require.Len(t, attachments, 1)
	assert.Equal(t, "ssh refused", attachments[0].Title)
	assert.Contains(t, attachments[0].Detail, "retrying")
	assert.Equal(t, StatusFail, a.Status())
}

func TestPhaseExecution_ReturnsCopy(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "worker-1"))
	exec := a.PhaseExecution(Provisioning)

	require.NoError(t, a.Attach(Provisioning, NewAttachment(StatusOK, "quota ok")))

	assert.Empty(t, exec.Attachments())
	assert.Len(t, a.PhaseExecution(Provisioning).Attachments(), 1)
}

func TestPhaseExecutions_InOrder(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "worker-1"))
	require.True(t, a.EnterIfNotAlready(Launching))
	require.True(t, a.EnterIfNotAlready(Completed))

	var phases []Phase
	for _, e := range a.PhaseExecutions() {
		phases = append(phases, e.Phase())
	}
	assert.Equal(t, []Phase{Provisioning, Launching, Completed}, phases)
}

func TestRename(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "planned"))

	assert.True(t, a.Rename("worker-7"))
	assert.False(t, a.Rename("worker-7"))
	assert.Equal(t, "worker-7", a.Name())
	assert.Equal(t, "planned", a.ID().Name)
}

func TestRecordRoundTrip(t *testing.T) {
	a := New(NewID("hetzner", "cx22", "worker-1"))
	a.Rename("worker-1.example")
	require.True(t, a.EnterIfNotAlready(Launching))
	require.NoError(t, a.Attach(Launching, NewAttachment(StatusWarn, "slow boot")))
	require.True(t, a.EnterIfNotAlready(Completed))

	restored, err := FromRecord(a.Record())
	require.NoError(t, err)

	assert.Equal(t, a.ID(), restored.ID())
	assert.Equal(t, a.Name(), restored.Name())
	assert.Equal(t, a.CurrentPhase(), restored.CurrentPhase())
	assert.Equal(t, a.Status(), restored.Status())
	assert.Equal(t, a.Record(), restored.Record())
}

func TestFromRecord_Invalid(t *testing.T) {
	id := NewID("hetzner", "cx22", "worker-1")

	tests := []struct {
		name string
		rec  Record
	}{
		{
			name: "invalid id",
			rec:  Record{Phases: []ExecutionRecord{{Phase: Provisioning}}},
		},
		{
			name: "no phases",
			rec:  Record{ID: id},
		},
		{
			name: "does not start with provisioning",
			rec:  Record{ID: id, Phases: []ExecutionRecord{{Phase: Launching}}},
		},
		{
			name: "phase out of order",
			rec: Record{ID: id, Phases: []ExecutionRecord{
				{Phase: Provisioning}, {Phase: Operating}, {Phase: Launching},
			}},
		},
		{
			name: "duplicate phase",
			rec: Record{ID: id, Phases: []ExecutionRecord{
				{Phase: Provisioning}, {Phase: Provisioning},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRecord(tt.rec)
			assert.Error(t, err)
		})
	}
}
