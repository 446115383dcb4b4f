package revert

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"configtrack/internal/change"
	"configtrack/internal/classify"
	"configtrack/internal/rpc"
	"configtrack/internal/store"
)

var (
	ErrCommitNotFound = errors.New("commit not found")
	// ErrNotLatest rejects reverts of anything but the most recent
	// commit; reverting mid-history would fork it.
	ErrNotLatest = errors.New("only the latest commit can be reverted")
)

const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
)

// ExecutedAction describes one inverse operation the engine applied
// directly.
type ExecutedAction struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	EntityName  string `json:"entity_name,omitempty"`
	Action      string `json:"action"`
	NewEntityID string `json:"new_entity_id,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// ManualAction describes an inverse the engine could not apply itself:
// the calling agent should invoke the named tool with the given
// arguments.
type ManualAction struct {
	Kind       string         `json:"kind"` // delete, recreate, or restore
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Reason     string         `json:"reason"`
}

// Outcome aggregates one revert request. Status is completed only when
// every entity was directly reverted without errors.
type Outcome struct {
	Status       string           `json:"status"`
	CommitHash   string           `json:"commit_hash"`
	Message      string           `json:"message"`
	Executed     []ExecutedAction `json:"executed"`
	Errors       []string         `json:"errors,omitempty"`
	Remaining    []ManualAction   `json:"remaining_actions,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
}

// Engine computes and applies the inverse of the latest commit. Its
// calls go straight to the remote API, not through an interceptor: a
// revert is not itself tracked.
type Engine struct {
	caller           rpc.Caller
	commits          store.Store
	environment      string
	conflictAttempts int
}

func NewEngine(caller rpc.Caller, commits store.Store, environment string, conflictAttempts int) *Engine {
	if conflictAttempts < 1 {
		conflictAttempts = 1
	}
	return &Engine{
		caller:           caller,
		commits:          commits,
		environment:      environment,
		conflictAttempts: conflictAttempts,
	}
}

// Revert validates that hash is the environment's latest commit,
// deduplicates its changes to their net effect, and applies or plans the
// inverse of each one.
func (e *Engine) Revert(ctx context.Context, hash string) (*Outcome, error) {
	commit, err := e.commits.GetCommit(ctx, e.environment, hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit: %w", err)
	}
	if commit == nil {
		return nil, ErrCommitNotFound
	}

	latest, err := e.commits.LatestHash(ctx, e.environment)
	if err != nil {
		return nil, fmt.Errorf("resolving latest commit: %w", err)
	}
	if hash != latest {
		return nil, ErrNotLatest
	}

	outcome := &Outcome{
		Status:     StatusCompleted,
		CommitHash: hash,
		Message:    commit.Message,
	}
	for _, ec := range change.Deduplicate(commit.Changes) {
		e.dispatch(ctx, ec, outcome)
	}

	if len(outcome.Errors) > 0 || len(outcome.Remaining) > 0 {
		outcome.Status = StatusPartial
	}
	if len(outcome.Remaining) > 0 {
		outcome.Instructions = "Apply each remaining action by invoking its tool with the given arguments, or resolve it manually."
	}
	return outcome, nil
}

func (e *Engine) dispatch(ctx context.Context, ec change.EntityChange, outcome *Outcome) {
	cp := capabilities[ec.EntityType]

	switch ec.Operation {
	case change.OpCreate:
		e.revertCreate(ctx, ec, cp, outcome)
	case change.OpUpdate:
		e.revertUpdate(ctx, ec, cp, outcome)
	case change.OpDelete:
		e.revertDelete(ctx, ec, cp, outcome)
	}
}

// revertCreate deletes the entity the commit created.
func (e *Engine) revertCreate(ctx context.Context, ec change.EntityChange, cp capability, outcome *Outcome) {
	if cp.destroy == "" || ec.EntityID == "" {
		outcome.Remaining = append(outcome.Remaining, ManualAction{
			Kind:       "delete",
			EntityType: ec.EntityType,
			EntityID:   ec.EntityID,
			Tool:       "delete_" + ec.EntityType,
			Args:       map[string]any{ec.EntityType + "_id": ec.EntityID},
			Reason:     "no direct delete capability for entity type " + ec.EntityType,
		})
		return
	}

	args := map[string]any{ec.EntityType + "_id": ec.EntityID}
	if _, err := e.caller.Call(ctx, cp.destroy, args); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("deleting %s %s: %v", ec.EntityType, ec.EntityID, err))
		return
	}
	outcome.Executed = append(outcome.Executed, ExecutedAction{
		EntityType: ec.EntityType,
		EntityID:   ec.EntityID,
		EntityName: ec.EntityName,
		Action:     "delete",
	})
}

// revertDelete recreates the entity from its before-snapshot. The remote
// API assigns a fresh id, which is reported back.
func (e *Engine) revertDelete(ctx context.Context, ec change.EntityChange, cp capability, outcome *Outcome) {
	if cp.create == "" || ec.Before == nil {
		reason := "no before-snapshot available"
		if cp.create == "" {
			reason = "no direct create capability for entity type " + ec.EntityType
		}
		outcome.Remaining = append(outcome.Remaining, ManualAction{
			Kind:       "recreate",
			EntityType: ec.EntityType,
			EntityID:   ec.EntityID,
			Tool:       "create_" + ec.EntityType,
			Args:       recreatePayload(ec.Before),
			Reason:     reason,
		})
		return
	}

	result, err := e.caller.Call(ctx, cp.create, recreatePayload(ec.Before))
	if err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("recreating %s %s: %v", ec.EntityType, ec.EntityID, err))
		return
	}

	created, _ := classify.Classify(cp.create)
	newID := classify.EntityID(created, nil, result.Object())
	outcome.Executed = append(outcome.Executed, ExecutedAction{
		EntityType:  ec.EntityType,
		EntityID:    ec.EntityID,
		EntityName:  ec.EntityName,
		Action:      "recreate",
		NewEntityID: newID,
	})
}

// revertUpdate restores the pre-change state with a minimal patch,
// retrying from a fresh read on optimistic-concurrency conflicts.
func (e *Engine) revertUpdate(ctx context.Context, ec change.EntityChange, cp capability, outcome *Outcome) {
	if cp.mutate == "" || ec.Before == nil || ec.After == nil {
		reason := "before or after state missing"
		if cp.mutate == "" {
			reason = "no direct update capability for entity type " + ec.EntityType
		}
		outcome.Remaining = append(outcome.Remaining, ManualAction{
			Kind:       "restore",
			EntityType: ec.EntityType,
			EntityID:   ec.EntityID,
			Tool:       "update_" + ec.EntityType,
			Args:       ec.Before,
			Reason:     reason,
		})
		return
	}

	patch := e.buildPatch(ec, ec.After)
	if len(patch) == 0 {
		outcome.Executed = append(outcome.Executed, ExecutedAction{
			EntityType: ec.EntityType,
			EntityID:   ec.EntityID,
			EntityName: ec.EntityName,
			Action:     "restore",
			Detail:     "no differing fields, nothing to apply",
		})
		return
	}

	if err := e.applyPatch(ctx, ec, cp, patch); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("restoring %s %s: %v", ec.EntityType, ec.EntityID, err))
		return
	}
	outcome.Executed = append(outcome.Executed, ExecutedAction{
		EntityType: ec.EntityType,
		EntityID:   ec.EntityID,
		EntityName: ec.EntityName,
		Action:     "restore",
	})
}

func (e *Engine) buildPatch(ec change.EntityChange, current map[string]any) map[string]any {
	if capabilities[ec.EntityType].contentOnly {
		return contentPatch(ec.Before)
	}
	return ComputePatch(ec.Before, current)
}

// applyPatch is a read-modify-write: on conflict the entity is re-read
// and the patch recomputed against the fresh state before retrying.
func (e *Engine) applyPatch(ctx context.Context, ec change.EntityChange, cp capability, patch map[string]any) error {
	var lastErr error
	for attempt := 1; attempt <= e.conflictAttempts; attempt++ {
		args := map[string]any{ec.EntityType + "_id": ec.EntityID}
		for key, value := range patch {
			args[key] = value
		}

		_, err := e.caller.Call(ctx, cp.mutate, args)
		if err == nil {
			return nil
		}
		if !rpc.IsConflict(err) {
			return err
		}
		lastErr = err

		log.WithError(err).WithField("entity", ec.EntityType+":"+ec.EntityID).Warn("conflict while reverting, re-reading")
		fresh, err := e.caller.Call(ctx, "get_"+ec.EntityType, map[string]any{ec.EntityType + "_id": ec.EntityID})
		if err != nil {
			return fmt.Errorf("re-reading after conflict: %w", err)
		}
		patch = e.buildPatch(ec, fresh.Object())
		if len(patch) == 0 {
			return nil
		}
	}
	return fmt.Errorf("conflict persisted after %d attempts: %w", e.conflictAttempts, lastErr)
}
