package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestalhq/vestal/internal/database"
	"github.com/vestalhq/vestal/internal/services"
	"github.com/vestalhq/vestal/internal/usecase"
	"github.com/vestalhq/vestal/internal/versioning"
)

func newTestSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	dbCtx, err := database.CreateDatabase(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDatabase(dbCtx) })

	engine := versioning.New(database.NewVersionRepository(dbCtx))
	kinds := []services.Kind{{Name: "note", Columns: []string{"title", "body"}}}
	records := usecase.NewRecord(services.NewRecordService(dbCtx, engine, kinds))
	s := NewServer(records, zerolog.Nop(), "test")

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "vestal-test", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool %s failed: %v", name, result.Content)

	data, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestToolsAreRegistered(t *testing.T) {
	session := newTestSession(t)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"record_set", "record_get", "record_history", "record_revert",
		"record_link", "record_unlink", "record_delete",
	}, names)
}

func TestRecordToolsRoundTrip(t *testing.T) {
	session := newTestSession(t)

	created := callTool[SetOutput](t, session, "record_set", map[string]any{
		"kind":   "note",
		"values": map[string]any{"title": "A"},
	})
	assert.True(t, created.Created)
	assert.Equal(t, int64(1), created.Version)

	updated := callTool[SetOutput](t, session, "record_set", map[string]any{
		"kind":   "note",
		"id":     created.ID,
		"values": map[string]any{"title": "B", "body": "text"},
	})
	assert.Equal(t, int64(2), updated.Version)

	history := callTool[HistoryOutput](t, session, "record_history", map[string]any{"kind": "note", "id": created.ID})
	require.Len(t, history.Versions, 2)
	assert.Nil(t, history.Versions[0].Changes)
	assert.Equal(t, []any{"A", "B"}, history.Versions[1].Changes["title"])

	preview := callTool[RevertOutput](t, session, "record_revert", map[string]any{
		"kind": "note", "id": created.ID, "locator": "1",
	})
	assert.False(t, preview.Saved)
	assert.Equal(t, int64(1), preview.Version)
	assert.Equal(t, map[string]any{"title": "A"}, preview.Attributes)

	saved := callTool[RevertOutput](t, session, "record_revert", map[string]any{
		"kind": "note", "id": created.ID, "locator": "first", "save": true,
	})
	assert.True(t, saved.Saved)
	assert.Equal(t, int64(3), saved.Version)

	record := callTool[RecordOutput](t, session, "record_get", map[string]any{"kind": "note", "id": created.ID})
	assert.Equal(t, "A", record.Attributes["title"])
	assert.Equal(t, int64(3), record.Version)

	deleted := callTool[ChangedOutput](t, session, "record_delete", map[string]any{"kind": "note", "id": created.ID})
	assert.True(t, deleted.Changed)
}

func TestLinkTools(t *testing.T) {
	session := newTestSession(t)

	owner := callTool[SetOutput](t, session, "record_set", map[string]any{"kind": "note", "values": map[string]any{"title": "owner"}})
	other := callTool[SetOutput](t, session, "record_set", map[string]any{"kind": "note", "values": map[string]any{"title": "other"}})
	args := map[string]any{"kind": "note", "id": owner.ID, "relatedKind": "note", "relatedId": other.ID}

	linked := callTool[ChangedOutput](t, session, "record_link", args)
	assert.True(t, linked.Changed)

	unlinked := callTool[ChangedOutput](t, session, "record_unlink", args)
	assert.True(t, unlinked.Changed)

	history := callTool[HistoryOutput](t, session, "record_history", map[string]any{"kind": "note", "id": owner.ID})
	require.Len(t, history.Versions, 3)
	assert.Equal(t, "remove", history.Versions[2].Changes["association"].(map[string]any)["action"])
}

func TestToolErrors(t *testing.T) {
	session := newTestSession(t)
	ctx := context.Background()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "record_get",
		Arguments: map[string]any{"kind": "note", "id": "missing"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "record_set",
		Arguments: map[string]any{"kind": "invoice", "values": map[string]any{"total": 3}},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
