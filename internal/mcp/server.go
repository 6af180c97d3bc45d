package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/vestalhq/vestal/internal/services"
	"github.com/vestalhq/vestal/internal/usecase"
	"github.com/vestalhq/vestal/internal/versioning"
)

// Server exposes record history as MCP tools.
type Server struct {
	server  *mcp.Server
	records *usecase.Record
	logger  zerolog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(records *usecase.Record, log zerolog.Logger, version string) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "vestal",
		Version: version,
	}, nil)

	s := &Server{
		server:  mcpServer,
		records: records,
		logger:  log,
	}

	s.registerTools()

	return s
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Msg("mcp server listening on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_set",
		Description: "Create a record or update its attributes. Watched changes are versioned.",
	}, s.handleSet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_get",
		Description: "Read a record and its current version number",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_history",
		Description: "List every version of a record, oldest first",
	}, s.handleHistory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_revert",
		Description: "Revert a record to a version number, RFC3339 time or anchor. Without save the result is a preview.",
	}, s.handleRevert)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_link",
		Description: "Relate a record to another record; the relation is versioned on the owner",
	}, s.handleLink)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_unlink",
		Description: "Remove a relation between two records; the removal is versioned on the owner",
	}, s.handleUnlink)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_delete",
		Description: "Delete a record together with its relations and history",
	}, s.handleDelete)
}

type RecordRef struct {
	Kind string `json:"kind" jsonschema:"the record kind"`
	ID   string `json:"id" jsonschema:"the record id"`
}

type SetInput struct {
	Kind   string         `json:"kind" jsonschema:"the record kind"`
	ID     string         `json:"id,omitempty" jsonschema:"the record id; omitted to create a record with a generated id"`
	Values map[string]any `json:"values" jsonschema:"attribute values to assign; null removes an attribute"`
}

type SetOutput struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Created bool   `json:"created"`
}

type RecordOutput struct {
	Kind       string         `json:"kind"`
	ID         string         `json:"id"`
	Version    int64          `json:"version"`
	Attributes map[string]any `json:"attributes"`
	CreatedAt  string         `json:"createdAt"`
	UpdatedAt  string         `json:"updatedAt"`
}

type HistoryOutput struct {
	Versions []HistoryEntry `json:"versions"`
}

type HistoryEntry struct {
	Number    int64          `json:"number"`
	CreatedAt string         `json:"createdAt"`
	Changes   map[string]any `json:"changes,omitempty"`
}

type RevertInput struct {
	Kind    string `json:"kind" jsonschema:"the record kind"`
	ID      string `json:"id" jsonschema:"the record id"`
	Locator string `json:"locator" jsonschema:"a version number, an RFC3339 time, first, last or a configured anchor"`
	Save    bool   `json:"save,omitempty" jsonschema:"persist the reverted attributes as a new version"`
}

type RevertOutput struct {
	Version    int64          `json:"version"`
	Saved      bool           `json:"saved"`
	Attributes map[string]any `json:"attributes"`
}

type LinkInput struct {
	Kind        string `json:"kind" jsonschema:"the owner kind"`
	ID          string `json:"id" jsonschema:"the owner id"`
	RelatedKind string `json:"relatedKind" jsonschema:"the related record kind"`
	RelatedID   string `json:"relatedId" jsonschema:"the related record id"`
}

type ChangedOutput struct {
	Message string `json:"message"`
	Changed bool   `json:"changed"`
}

func (s *Server) handleSet(ctx context.Context, req *mcp.CallToolRequest, input SetInput) (*mcp.CallToolResult, SetOutput, error) {
	result, err := s.records.Set(ctx, usecase.SetInput{
		Kind:   input.Kind,
		ID:     input.ID,
		Values: input.Values,
	})
	if err != nil {
		return nil, SetOutput{}, fmt.Errorf("failed to set record: %w", err)
	}

	return nil, SetOutput{
		Kind:    result.Record.Kind,
		ID:      result.Record.ID,
		Version: result.Version,
		Created: result.Created,
	}, nil
}

func (s *Server) handleGet(ctx context.Context, req *mcp.CallToolRequest, input RecordRef) (*mcp.CallToolResult, RecordOutput, error) {
	result, err := s.records.Get(ctx, input.Kind, input.ID)
	if err != nil {
		return nil, RecordOutput{}, fmt.Errorf("failed to get record: %w", err)
	}

	return nil, recordOutput(result.Record, result.Version), nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcp.CallToolRequest, input RecordRef) (*mcp.CallToolResult, HistoryOutput, error) {
	versions, err := s.records.History(ctx, input.Kind, input.ID)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(versions))
	for _, v := range versions {
		changes, err := changesMap(v.Changes)
		if err != nil {
			return nil, HistoryOutput{}, err
		}
		entries = append(entries, HistoryEntry{
			Number:    v.Number,
			CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339Nano),
			Changes:   changes,
		})
	}

	return nil, HistoryOutput{Versions: entries}, nil
}

func (s *Server) handleRevert(ctx context.Context, req *mcp.CallToolRequest, input RevertInput) (*mcp.CallToolResult, RevertOutput, error) {
	result, err := s.records.Revert(ctx, usecase.RevertInput{
		Kind:    input.Kind,
		ID:      input.ID,
		Locator: input.Locator,
		Save:    input.Save,
	})
	if err != nil {
		return nil, RevertOutput{}, fmt.Errorf("failed to revert record: %w", err)
	}

	return nil, RevertOutput{
		Version:    result.Version,
		Saved:      result.Saved,
		Attributes: attributes(result.Record),
	}, nil
}

func (s *Server) handleLink(ctx context.Context, req *mcp.CallToolRequest, input LinkInput) (*mcp.CallToolResult, ChangedOutput, error) {
	added, err := s.records.Link(ctx, input.Kind, input.ID, input.RelatedKind, input.RelatedID)
	if err != nil {
		return nil, ChangedOutput{}, fmt.Errorf("failed to link records: %w", err)
	}
	if !added {
		return nil, ChangedOutput{Message: "Records are already linked"}, nil
	}
	return nil, ChangedOutput{
		Message: fmt.Sprintf("Linked %s/%s to %s/%s", input.Kind, input.ID, input.RelatedKind, input.RelatedID),
		Changed: true,
	}, nil
}

func (s *Server) handleUnlink(ctx context.Context, req *mcp.CallToolRequest, input LinkInput) (*mcp.CallToolResult, ChangedOutput, error) {
	removed, err := s.records.Unlink(ctx, input.Kind, input.ID, input.RelatedKind, input.RelatedID)
	if err != nil {
		return nil, ChangedOutput{}, fmt.Errorf("failed to unlink records: %w", err)
	}
	if !removed {
		return nil, ChangedOutput{Message: "Records are not linked"}, nil
	}
	return nil, ChangedOutput{
		Message: fmt.Sprintf("Unlinked %s/%s from %s/%s", input.Kind, input.ID, input.RelatedKind, input.RelatedID),
		Changed: true,
	}, nil
}

func (s *Server) handleDelete(ctx context.Context, req *mcp.CallToolRequest, input RecordRef) (*mcp.CallToolResult, ChangedOutput, error) {
	deleted, err := s.records.Delete(ctx, input.Kind, input.ID)
	if err != nil {
		return nil, ChangedOutput{}, fmt.Errorf("failed to delete record: %w", err)
	}
	if !deleted {
		return nil, ChangedOutput{}, fmt.Errorf("record not found: %s/%s", input.Kind, input.ID)
	}

	return nil, ChangedOutput{
		Message: fmt.Sprintf("Deleted %s/%s and its history", input.Kind, input.ID),
		Changed: true,
	}, nil
}

func recordOutput(rec *services.Record, version int64) RecordOutput {
	return RecordOutput{
		Kind:       rec.Kind,
		ID:         rec.ID,
		Version:    version,
		Attributes: attributes(rec),
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func attributes(rec *services.Record) map[string]any {
	if rec.Attributes == nil {
		return map[string]any{}
	}
	return rec.Attributes
}

// changesMap renders a diff in its stored flat form. The baseline has none.
func changesMap(changes *versioning.Changes) (map[string]any, error) {
	data, err := versioning.EncodeChanges(changes)
	if err != nil || data == nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode changes: %w", err)
	}
	return out, nil
}
