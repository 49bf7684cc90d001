package mongo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelion/agentkit/agent"
	"github.com/kaelion/agentkit/blackboard"
	"github.com/kaelion/agentkit/goap"
	"github.com/kaelion/agentkit/process"
	mongostore "github.com/kaelion/agentkit/store/mongo"
)

// SnapshotOf is a pure projection and is exercised directly here; Store's
// Save/FindByID/List/Delete methods call the v2 mongo driver's concrete
// *mongo.Collection and have no tests in this repository, since they need
// a real MongoDB deployment (see DESIGN.md).
func TestSnapshotOf_ProjectsIDAndStatus(t *testing.T) {
	def := &agent.Definition{
		Name:    "trivial",
		Actions: []agent.ActionSpec{},
		Goals:   []agent.GoalSpec{{Name: "g", Preconditions: map[string]bool{}}},
	}
	p := process.New(def, agent.ProcessOptions{}, nil, nil)
	require.NoError(t, p.Tick(context.Background()))

	snapshot := mongostore.SnapshotOf(p, "trivial")
	assert.Equal(t, p.ID(), snapshot.ID)
	assert.Equal(t, process.StatusCompleted, snapshot.Status)
	assert.Equal(t, "trivial", snapshot.AgentName)
}

func TestSnapshotOf_RecordsHistoryErrors(t *testing.T) {
	def := &agent.Definition{
		Name: "flaky",
		Actions: []agent.ActionSpec{
			{Name: "mightFail", Preconditions: map[string]bool{}, Effects: map[string]bool{"done": true}},
		},
		Goals: []agent.GoalSpec{{Name: "g", Preconditions: map[string]bool{"done": true}}},
	}
	boom := errors.New("boom")
	executor := process.ActionExecutorFunc(func(context.Context, *blackboard.Blackboard, goap.Action, []string) error {
		return boom
	})

	p := process.New(def, agent.ProcessOptions{}, nil, executor)
	require.ErrorIs(t, p.Tick(context.Background()), boom)
	assert.Equal(t, process.StatusFailed, p.Status())

	snapshot := mongostore.SnapshotOf(p, "flaky")
	require.Len(t, snapshot.History, 1)
	assert.Equal(t, "mightFail", snapshot.History[0].ActionName)
	assert.Contains(t, snapshot.History[0].Err, "boom")
}
