package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xde-mcp/sim-sub005/pkg/execution"
	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/services"
)

func TestOpenCreatesSessionWithEmptyGraph(t *testing.T) {
	var built []string

	manager := services.NewSessionManager(func(workflowID string) *execution.Controller {
		built = append(built, workflowID)

		return nil
	})

	session := manager.Open("wf-1")
	require.NotNil(t, session)
	assert.Equal(t, "wf-1", session.WorkflowID)
	assert.Equal(t, []string{"wf-1"}, built)

	state := session.State()
	require.NotNil(t, state)
	assert.Equal(t, "wf-1", state.WorkflowID)
	assert.Empty(t, state.Blocks)
}

func TestOpenReturnsExistingSession(t *testing.T) {
	calls := 0

	manager := services.NewSessionManager(func(string) *execution.Controller {
		calls++

		return nil
	})

	first := manager.Open("wf-1")
	first.SetState(&models.WorkflowState{WorkflowID: "wf-1"})

	second := manager.Open("wf-1")
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls, "controller built once per workflow")
}

func TestGetRequiresOpenSession(t *testing.T) {
	manager := services.NewSessionManager(func(string) *execution.Controller { return nil })

	_, err := manager.Get("wf-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow not found")

	manager.Open("wf-1")

	session, err := manager.Get("wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", session.WorkflowID)
}

func TestCloseDropsSession(t *testing.T) {
	manager := services.NewSessionManager(func(string) *execution.Controller { return nil })

	manager.Open("wf-1")
	manager.Close("wf-1")

	_, err := manager.Get("wf-1")
	require.Error(t, err)
}
