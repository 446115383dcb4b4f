package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"configtrack/internal/change"
	"configtrack/internal/revert"
	"configtrack/internal/track"
)

const defaultHistoryLimit = 10

type ShowHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of commits to return, newest first"`
}

type ShowCommitDetailsInput struct {
	Hash string `json:"hash" jsonschema:"commit hash"`
}

type RevertCommitInput struct {
	Hash string `json:"hash" jsonschema:"hash of the commit to revert, must be the latest"`
}

type CommitSummaryOutput struct {
	Hash               string `json:"hash"`
	Message            string `json:"message"`
	Timestamp          string `json:"timestamp"`
	ChangeCount        int    `json:"change_count"`
	UserRequestPreview string `json:"user_request_preview,omitempty"`
}

type ShowHistoryOutput struct {
	Commits []CommitSummaryOutput `json:"commits,omitempty"`
	Message string                `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type EntityChangeOutput struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	EntityName string         `json:"entity_name,omitempty"`
	Operation  string         `json:"operation"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
}

type ShowCommitDetailsOutput struct {
	Hash        string               `json:"hash,omitempty"`
	Message     string               `json:"message,omitempty"`
	Timestamp   string               `json:"timestamp,omitempty"`
	UserRequest string               `json:"user_request,omitempty"`
	Parent      string               `json:"parent,omitempty"`
	Changes     []EntityChangeOutput `json:"changes,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type RevertCommitOutput struct {
	Status           string                  `json:"status,omitempty"`
	CommitHash       string                  `json:"commit_hash,omitempty"`
	Message          string                  `json:"message,omitempty"`
	Executed         []revert.ExecutedAction `json:"executed,omitempty"`
	Errors           []string                `json:"errors,omitempty"`
	RemainingActions []revert.ManualAction   `json:"remaining_actions,omitempty"`
	Instructions     string                  `json:"instructions,omitempty"`
	Error            string                  `json:"error,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "show_history",
		Description: "List recent configuration commits, newest first",
	}, s.handleShowHistory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "show_commit_details",
		Description: "Show the full change list of one commit",
	}, s.handleShowCommitDetails)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "revert_commit",
		Description: "Revert the latest configuration commit",
	}, s.handleRevertCommit)
}

func (s *Server) handleShowHistory(ctx context.Context, req *sdk.CallToolRequest, input ShowHistoryInput) (*sdk.CallToolResult, ShowHistoryOutput, error) {
	db := s.session.Store()
	if db == nil {
		return nil, ShowHistoryOutput{Error: track.ErrTrackingUnavailable.Error()}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	commits, err := db.ListCommits(ctx, s.session.Environment, limit)
	if err != nil {
		return nil, ShowHistoryOutput{Error: fmt.Sprintf("listing commits: %v", err)}, nil
	}
	if len(commits) == 0 {
		return nil, ShowHistoryOutput{Message: "No configuration changes recorded"}, nil
	}

	output := make([]CommitSummaryOutput, 0, len(commits))
	for _, commit := range commits {
		output = append(output, CommitSummaryOutput{
			Hash:               commit.Hash,
			Message:            commit.Message,
			Timestamp:          commit.Timestamp.Format(time.RFC3339),
			ChangeCount:        len(commit.Changes),
			UserRequestPreview: previewText(commit.UserRequest),
		})
	}
	return nil, ShowHistoryOutput{Commits: output}, nil
}

func (s *Server) handleShowCommitDetails(ctx context.Context, req *sdk.CallToolRequest, input ShowCommitDetailsInput) (*sdk.CallToolResult, ShowCommitDetailsOutput, error) {
	if input.Hash == "" {
		return nil, ShowCommitDetailsOutput{}, fmt.Errorf("hash is required")
	}
	db := s.session.Store()
	if db == nil {
		return nil, ShowCommitDetailsOutput{Error: track.ErrTrackingUnavailable.Error()}, nil
	}

	commit, err := db.GetCommit(ctx, s.session.Environment, input.Hash)
	if err != nil {
		return nil, ShowCommitDetailsOutput{Error: fmt.Sprintf("loading commit: %v", err)}, nil
	}
	if commit == nil {
		return nil, ShowCommitDetailsOutput{Error: "commit not found"}, nil
	}

	changes := make([]EntityChangeOutput, 0, len(commit.Changes))
	for _, ec := range commit.Changes {
		changes = append(changes, entityChangeOutput(ec))
	}
	return nil, ShowCommitDetailsOutput{
		Hash:        commit.Hash,
		Message:     commit.Message,
		Timestamp:   commit.Timestamp.Format(time.RFC3339),
		UserRequest: commit.UserRequest,
		Parent:      commit.Parent,
		Changes:     changes,
	}, nil
}

func (s *Server) handleRevertCommit(ctx context.Context, req *sdk.CallToolRequest, input RevertCommitInput) (*sdk.CallToolResult, RevertCommitOutput, error) {
	if input.Hash == "" {
		return nil, RevertCommitOutput{}, fmt.Errorf("hash is required")
	}
	if s.session.Store() == nil {
		return nil, RevertCommitOutput{Error: track.ErrTrackingUnavailable.Error()}, nil
	}

	outcome, err := s.reverter.Revert(ctx, input.Hash)
	if err != nil {
		// Store failures and validation failures alike come back as a
		// structured error payload, never a raised tool error.
		return nil, RevertCommitOutput{Error: err.Error()}, nil
	}
	return nil, RevertCommitOutput{
		Status:           outcome.Status,
		CommitHash:       outcome.CommitHash,
		Message:          outcome.Message,
		Executed:         outcome.Executed,
		Errors:           outcome.Errors,
		RemainingActions: outcome.Remaining,
		Instructions:     outcome.Instructions,
	}, nil
}

func entityChangeOutput(ec change.EntityChange) EntityChangeOutput {
	return EntityChangeOutput{
		EntityType: ec.EntityType,
		EntityID:   ec.EntityID,
		EntityName: ec.EntityName,
		Operation:  string(ec.Operation),
		Before:     ec.Before,
		After:      ec.After,
	}
}

// previewText trims long user requests for the history listing, cutting
// on a rune boundary.
func previewText(text string) string {
	const max = 100
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
