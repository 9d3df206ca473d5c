package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
	"github.com/couchrishi/sahabat/agentserver/internal/pipeline"
)

func validateRunRequest(req *domain.RunRequest) error {
	if err := checkApp(req.AppName); err != nil {
		return err
	}
	if req.UserID == "" {
		return fmt.Errorf("user_id is required: %w", ErrInvalidRequest)
	}
	if req.SessionID == "" {
		return fmt.Errorf("session_id is required: %w", ErrInvalidRequest)
	}
	if len(req.NewMessage.Parts) == 0 {
		return fmt.Errorf("new_message.parts is required: %w", ErrInvalidRequest)
	}
	return nil
}

// Run executes one turn on an existing session and reports every agent event
// to emit. Errors returned before the first emit mean no run was started.
func (s *Service) Run(ctx context.Context, req domain.RunRequest, emit pipeline.Emitter) (*domain.Run, error) {
	if err := validateRunRequest(&req); err != nil {
		return nil, err
	}
	if req.NewMessage.Role == "" {
		req.NewMessage.Role = domain.RoleUser
	}
	key := req.Key()

	unlock := s.locks.Lock(key.String())
	defer unlock()

	session, err := s.store.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.State.Merge(req.StateDelta)

	history, err := s.history(ctx, key)
	if err != nil {
		s.logger.Warn("failed to load history", "session", key.String(), "error", err)
	}

	// Create run
	runID := "run_" + uuid.New().String()[:8]
	now := time.Now()
	run := &domain.Run{
		RunID:     runID,
		AppName:   key.AppName,
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Status:    domain.RunStatusRunning,
		StartedAt: now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	text, _ := req.NewMessage.FirstText()
	userMsg := &domain.Message{
		MessageID: "msg_" + uuid.New().String()[:8],
		SessionID: key.SessionID,
		RunID:     runID,
		Role:      domain.RoleUser,
		Content:   text,
		CreatedAt: now,
	}
	if err := s.store.CreateMessage(ctx, key, userMsg); err != nil {
		s.logger.Error("failed to save user message", "run_id", runID, "error", err)
	}

	s.trace(ctx, runID, domain.EventTypeRunStarted, "", map[string]interface{}{
		"session":   key.String(),
		"streaming": req.Streaming,
		"user_tier": string(session.State.Tier()),
	})
	s.trace(ctx, runID, domain.EventTypeUserInput, domain.RoleUser, map[string]interface{}{
		"message_id": userMsg.MessageID,
		"content":    text,
	})

	runCtx := ctx
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	turn := &pipeline.Turn{
		InvocationID: runID,
		State:        session.State,
		History:      history,
		Message:      req.NewMessage,
		Streaming:    req.Streaming,
	}

	out, runErr := s.pipeline.Run(runCtx, turn, func(ev *domain.Event) error {
		if !ev.Partial {
			s.trace(ctx, runID, domain.EventTypeAgentEvent, ev.Author, ev)
		}
		return emit(ev)
	})

	// Persistence below must survive a client that hung up mid-stream.
	persistCtx := context.WithoutCancel(ctx)

	if err := s.store.UpdateSessionState(persistCtx, key, turn.State); err != nil {
		s.logger.Error("failed to persist session state", "run_id", runID, "error", err)
	}

	if runErr != nil {
		s.failRun(persistCtx, run, runErr)
		return run, runErr
	}

	s.completeRun(persistCtx, run, out)
	return run, nil
}

func (s *Service) failRun(ctx context.Context, run *domain.Run, runErr error) {
	s.logger.Error("run failed", "run_id", run.RunID, "session", run.SessionID, "error", runErr)

	s.trace(ctx, run.RunID, domain.EventTypeRunFailed, "", map[string]interface{}{
		"code":    "agent_error",
		"message": runErr.Error(),
	})

	errData, _ := json.Marshal(map[string]string{"code": "agent_error", "message": runErr.Error()})
	if err := s.store.UpdateRunCompleted(ctx, run.RunID, domain.RunStatusFailed, errData); err != nil {
		s.logger.Error("failed to update run status", "run_id", run.RunID, "error", err)
	}
	run.Status = domain.RunStatusFailed
	run.Error = errData

	s.notify(ctx, run, domain.Notification{
		Type:  domain.NotificationTurnFailed,
		Error: runErr.Error(),
	})
}

func (s *Service) completeRun(ctx context.Context, run *domain.Run, out *pipeline.Outcome) {
	run.TargetAgent = string(out.Target)
	if err := s.store.UpdateRunTarget(ctx, run.RunID, out.Target); err != nil {
		s.logger.Error("failed to record run target", "run_id", run.RunID, "error", err)
	}

	s.trace(ctx, run.RunID, domain.EventTypeAnalysis, domain.AgentOrchestrator, map[string]interface{}{
		"ok":       out.Analysis.IsOk(),
		"analysis": out.Analysis.StateValue(),
	})
	s.trace(ctx, run.RunID, domain.EventTypePolicyDecision, domain.AgentOrchestrator, out.Decision)

	assistantMsg := &domain.Message{
		MessageID: "msg_" + uuid.New().String()[:8],
		SessionID: run.SessionID,
		RunID:     run.RunID,
		Role:      domain.RoleModel,
		Author:    string(out.Target),
		Content:   out.FinalResponse,
		CreatedAt: time.Now(),
	}
	if out.FinalResponse != "" {
		key := domain.SessionKey{AppName: run.AppName, UserID: run.UserID, SessionID: run.SessionID}
		if err := s.store.CreateMessage(ctx, key, assistantMsg); err != nil {
			s.logger.Error("failed to save assistant message", "run_id", run.RunID, "error", err)
		}
	}

	s.trace(ctx, run.RunID, domain.EventTypeRunDone, string(out.Target), map[string]interface{}{
		"final_response": out.FinalResponse,
		"usage":          out.Usage,
	})

	if err := s.store.UpdateRunCompleted(ctx, run.RunID, domain.RunStatusDone, nil); err != nil {
		s.logger.Error("failed to update run status", "run_id", run.RunID, "error", err)
	}
	run.Status = domain.RunStatusDone

	s.logger.Info("run done", "run_id", run.RunID, "target", out.Target, "reason", out.Decision.Reason)

	s.notify(ctx, run, domain.Notification{
		Type:          domain.NotificationTurnComplete,
		Author:        string(out.Target),
		FinalResponse: out.FinalResponse,
	})
}

func (s *Service) notify(ctx context.Context, run *domain.Run, n domain.Notification) {
	if s.notifier == nil {
		return
	}
	n.RunID = run.RunID
	n.SessionID = run.SessionID
	if _, err := s.notifier.PushEvent(ctx, run.SessionID, n); err != nil {
		s.logger.Warn("failed to notify gateway", "run_id", run.RunID, "error", err)
	}
}

// history rebuilds the model conversation from stored messages.
func (s *Service) history(ctx context.Context, key domain.SessionKey) ([]domain.Content, error) {
	messages, err := s.store.GetMessages(ctx, key, s.config.HistoryLimit)
	if err != nil {
		return nil, err
	}
	contents := make([]domain.Content, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == domain.RoleUser {
			contents = append(contents, domain.UserText(m.Content))
		} else {
			contents = append(contents, domain.ModelText(m.Content))
		}
	}
	return contents, nil
}
