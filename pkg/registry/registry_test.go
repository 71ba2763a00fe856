package registry

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

func newTestRegistry() *Registry {
	r := NewRegistry(slog.Default())
	RegisterDefaultBlocks(r)

	return r
}

func TestRegistry_Get_Registered(t *testing.T) {
	r := newTestRegistry()

	def, err := r.Get(models.BlockTypeAgent)
	require.NoError(t, err)
	assert.Equal(t, "Agent", def.DisplayName())
	assert.Equal(t, models.CategoryBlock, def.Category())
}

func TestRegistry_Get_Unknown(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get("teleport")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_FixedNames(t *testing.T) {
	r := newTestRegistry()

	start, ok := r.MustGet(models.BlockTypeStart).(FixedNamer)
	require.True(t, ok)
	assert.Equal(t, "Start", start.FixedName())

	response, ok := r.MustGet(models.BlockTypeResponse).(FixedNamer)
	require.True(t, ok)
	assert.Equal(t, "Response", response.FixedName())

	_, ok = r.MustGet(models.BlockTypeAgent).(FixedNamer)
	assert.False(t, ok)
}

func TestRegistry_TriggerPriorityOrdering(t *testing.T) {
	r := newTestRegistry()

	priority := func(blockType string) int {
		ranker, ok := r.MustGet(blockType).(TriggerRanker)
		require.True(t, ok, "%s should rank as trigger", blockType)

		return ranker.TriggerPriority()
	}

	assert.Greater(t, priority(models.BlockTypeStart), priority(models.BlockTypeSchedule))
	assert.Greater(t, priority(models.BlockTypeSchedule), priority(models.BlockTypeWebhook))
	assert.Greater(t, priority(models.BlockTypeWebhook), priority(models.BlockTypeStarter))
}

func TestScheduleDefinition_ValidateConfig(t *testing.T) {
	r := newTestRegistry()

	block := &models.Block{ID: "s1", Type: models.BlockTypeSchedule, Name: "Schedule 1", Enabled: true}
	block.SetSubBlockValue("cronExpression", "*/5 * * * *")
	require.NoError(t, r.ValidateConfig(block))

	block.SetSubBlockValue("cronExpression", "not a cron")
	err := r.ValidateConfig(block)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron")
}

func TestWebhookDefinition_MockPayload(t *testing.T) {
	r := newTestRegistry()
	provider, ok := r.MustGet(models.BlockTypeWebhook).(MockPayloadProvider)
	require.True(t, ok)

	testCases := []struct {
		name     string
		value    any
		expected map[string]any
		wantErr  bool
	}{
		{name: "absent", value: nil, expected: map[string]any{}},
		{name: "map", value: map[string]any{"event": "push"}, expected: map[string]any{"event": "push"}},
		{name: "json string", value: `{"event":"pr"}`, expected: map[string]any{"event": "pr"}},
		{name: "bad json", value: `{event`, wantErr: true},
		{name: "wrong type", value: 42, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			block := &models.Block{ID: "w1", Type: models.BlockTypeWebhook, Name: "Webhook 1", Enabled: true}
			if tc.value != nil {
				block.SetSubBlockValue("testPayload", tc.value)
			}

			payload, err := provider.MockPayload(block)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, payload)
		})
	}
}

func TestInputFormatProvider(t *testing.T) {
	r := newTestRegistry()
	provider, ok := r.MustGet(models.BlockTypeAPI).(InputFormatProvider)
	require.True(t, ok)

	block := &models.Block{ID: "a1", Type: models.BlockTypeAPI, Name: "API", Enabled: true}
	block.SetSubBlockValue("inputFormat", []any{
		map[string]any{"name": "count", "type": "number", "value": "3"},
		map[string]any{"type": "string", "value": "unnamed is skipped"},
	})

	fields, ok := provider.InputFormat(block)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "count", fields[0].Name)
	assert.Equal(t, "number", fields[0].Type)
}

func TestRegistry_ValidateConfig_Schema(t *testing.T) {
	r := newTestRegistry()

	block := &models.Block{ID: "c1", Type: models.BlockTypeAPICall, Name: "API Call 1", Enabled: true}
	block.SetSubBlockValue("method", "FETCH")

	err := r.ValidateConfig(block)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	block.SetSubBlockValue("method", "GET")
	require.NoError(t, r.ValidateConfig(block))
}
