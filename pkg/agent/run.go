package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/normalize"
	"github.com/entrhq/browserpilot/pkg/stall"
	"github.com/entrhq/browserpilot/pkg/types"
)

// runState is everything one invocation carries through the loop.
type runState struct {
	goal      string
	path      string
	sessionID string
	resumed   bool
	provider  llm.Provider
	cp        *checkpoint.Checkpoint
}

// outcome is how a step ended. Zero means continue.
type outcome int

const (
	continueRun outcome = iota
	finished
)

// Run executes a run for in. Blocks, completion and budget exhaustion are
// reported through the Result; configuration problems, fatal action
// errors, provider errors and cancellation are returned as errors after
// the checkpoint has been saved.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	debugLog.Infof("run started: goal=%q provider=%s model=%s resumed=%t steps=%d/%d checkpoint=%s",
		st.goal, st.provider.ID(), st.provider.Model(), st.resumed, st.cp.Steps, st.cp.MaxSteps, st.path)

	if st.resumed {
		r.progress(st, types.StatusRecovered, "", fmt.Sprintf("resumed at step %d", st.cp.Steps))
	}

	if done, err := r.navigateStart(ctx, st, in.StartURL); err != nil || done {
		return r.finish(ctx, st, err)
	}
	if err := r.save(st); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			debugLog.Infof("run cancelled at step %d", st.cp.Steps)
			return r.finish(ctx, st, err)
		}
		if st.cp.Steps >= st.cp.MaxSteps {
			debugLog.Infof("step budget of %d exhausted", st.cp.MaxSteps)
			if err := r.save(st); err != nil {
				return nil, err
			}
			r.progress(st, types.StatusRunning, "", "step budget exhausted")
			return r.result(st, StatusBudgetExhausted), nil
		}

		out, err := r.step(ctx, st)
		if err != nil || out == finished {
			return r.finish(ctx, st, err)
		}
	}
}

// prepare validates the input, resolves the provider and loads or creates
// the checkpoint.
func (r *Runner) prepare(ctx context.Context, in Input) (*runState, error) {
	goal := strings.TrimSpace(in.Goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is required", ErrConfiguration)
	}
	if in.MaxSteps < 0 {
		return nil, fmt.Errorf("%w: maxSteps must not be negative, got %d", ErrConfiguration, in.MaxSteps)
	}
	maxSteps := in.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = r.sessionID
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	path := in.CheckpointPath
	if path == "" {
		path = checkpoint.DefaultPath(r.checkpointDir, sessionID)
	}

	st := &runState{goal: goal, path: path, sessionID: sessionID}

	if in.ResumeFromCheckpoint {
		prev := r.store.Load(path)
		switch {
		case checkpoint.Resumable(prev, goal):
			st.cp = prev.Clone()
			st.resumed = true
			maxSteps = checkpoint.EffectiveMaxSteps(maxSteps, prev)
		case prev != nil:
			debugLog.Infof("checkpoint %s not resumable for this goal (goal match=%t, finished=%t), starting fresh",
				path, prev.Goal == goal, prev.Completed)
		}
	}

	id, model, err := r.selectProvider(in, st.cp)
	if err != nil {
		return nil, err
	}
	provider, err := r.providers(ctx, id, model)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	now := r.now()
	if st.cp == nil {
		st.cp = &checkpoint.Checkpoint{
			Version:       checkpoint.Version,
			Goal:          goal,
			CreatedAt:     now,
			Actions:       []string{},
			PagesVisited:  []string{},
			ActionHistory: []checkpoint.HistoryEntry{},
		}
	}
	st.cp.SessionID = sessionID
	st.cp.Provider = string(provider.ID())
	st.cp.Model = provider.Model()
	st.cp.MaxSteps = maxSteps
	st.cp.UpdatedAt = now
	st.provider = provider
	return st, nil
}

// selectProvider picks the provider: explicit input, then the model name,
// then a resumed checkpoint's provider, then the Runner default.
func (r *Runner) selectProvider(in Input, resumed *checkpoint.Checkpoint) (llm.ID, string, error) {
	if in.Provider != "" {
		id, err := llm.ParseID(in.Provider)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return id, in.Model, nil
	}
	if id, ok := llm.InferID(in.Model); ok {
		return id, in.Model, nil
	}
	if in.Model == "" && resumed != nil {
		if id, err := llm.ParseID(resumed.Provider); err == nil {
			return id, resumed.Model, nil
		}
	}
	return r.defaultProvider, in.Model, nil
}

// navigateStart opens the last page of a resumed run, or startURL for a
// fresh one, before the first step. It reports done when the navigation was blocked.
func (r *Runner) navigateStart(ctx context.Context, st *runState, startURL string) (bool, error) {
	target := strings.TrimSpace(startURL)
	if st.resumed && st.cp.LastURL != "" {
		target = st.cp.LastURL
	}
	if target == "" || target == r.driver.CurrentURL() {
		return false, nil
	}

	nav := action.New(action.Navigate, map[string]any{action.ArgURL: target})
	if decision := r.classifier.Classify(string(nav.Name), nav.Args); !decision.Allowed {
		return true, r.block(st, decision.Reason)
	}
	if err := r.executor.Execute(ctx, r.driver, nav); err != nil {
		return false, fmt.Errorf("initial navigation to %s: %w", target, err)
	}
	st.cp.Actions = append(st.cp.Actions, "navigate "+target)
	st.cp.Visit(r.driver.CurrentURL())
	return false, nil
}

// step performs one iteration of the loop.
func (r *Runner) step(ctx context.Context, st *runState) (outcome, error) {
	cp := st.cp

	screenshot, err := r.driver.Screenshot(ctx)
	if err != nil {
		return finished, fmt.Errorf("capture screenshot: %w", err)
	}
	url := r.driver.CurrentURL()
	previousURL := cp.LastURL
	if previousURL != "" && url == previousURL {
		cp.URLStabilityCount++
	} else {
		cp.URLStabilityCount = 0
	}
	cp.LastURL = url
	cp.Visit(url)

	if reason := r.detector.Detect(url, cp.Recent(stall.HistoryWindow), cp.URLStabilityCount); reason != "" {
		return finished, r.block(st, reason)
	}

	r.bus.Publish(types.NewScreenshotEvent(st.sessionID, screenshot, "image/png", url))

	if err := r.limiter.Wait(ctx); err != nil {
		return finished, err
	}

	viewport := r.driver.Viewport()
	resp, err := st.provider.Next(ctx, &llm.Request{
		Goal:       st.goal,
		Prompt:     buildPrompt(st.goal, url, cp.Steps, cp.MaxSteps, cp.Recent(PromptHistoryWindow)),
		URL:        url,
		Screenshot: screenshot,
		MIMEType:   "image/png",
		Viewport:   llm.Viewport{Width: viewport.Width, Height: viewport.Height},
	})
	if err != nil {
		return finished, err
	}
	if resp == nil {
		return finished, &llm.ResponseError{Provider: st.provider.ID(), Err: errors.New("empty response")}
	}

	switch {
	case resp.Refusal != "":
		return finished, r.block(st, "model refused: "+resp.Refusal)
	case !resp.HasAction():
		return finished, r.complete(st, resp.Text)
	}

	act, err := normalize.Normalize(resp.Payload)
	if err != nil {
		return finished, fmt.Errorf("normalize %s action %q: %w", st.provider.ID(), resp.Payload.Name(), err)
	}
	if decision := r.classifier.Classify(string(act.Name), act.Args); !decision.Allowed {
		return finished, r.block(st, decision.Reason)
	}

	debugLog.Debugf("step %d: %s", cp.Steps+1, act)
	if err := r.executor.Execute(ctx, r.driver, act); err != nil {
		return finished, err
	}

	cp.ActionHistory = append(cp.ActionHistory, checkpoint.NewHistoryEntry(act, url, r.now()))
	cp.Actions = append(cp.Actions, act.String())
	cp.Steps++
	if err := r.save(st); err != nil {
		return finished, err
	}
	r.progress(st, types.StatusRunning, string(act.Name), act.String())
	return continueRun, nil
}

func (r *Runner) block(st *runState, reason string) error {
	debugLog.Warnf("run blocked: %s", reason)
	st.cp.Blocked = true
	st.cp.Completed = true
	st.cp.BlockedReason = reason
	if err := r.save(st); err != nil {
		return err
	}
	r.bus.Publish(types.NewBlockedEvent(st.sessionID, reason, st.path))
	r.progress(st, types.StatusBlocked, "", reason)
	return nil
}

func (r *Runner) complete(st *runState, text string) error {
	text = strings.TrimSpace(text)
	debugLog.Infof("run completed after %d steps", st.cp.Steps)
	st.cp.Completed = true
	st.cp.FinalAnalysis = text
	st.cp.Actions = append(st.cp.Actions, "done: "+text)
	if err := r.save(st); err != nil {
		return err
	}
	r.progress(st, types.StatusCompleted, "", text)
	return nil
}

// finish saves the checkpoint on failure paths and builds the result on
// terminal ones.
func (r *Runner) finish(ctx context.Context, st *runState, err error) (*Result, error) {
	if err != nil {
		debugLog.Errorf("run failed at step %d: %v", st.cp.Steps, err)
		if saveErr := r.save(st); saveErr != nil {
			debugLog.Errorf("%v", saveErr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if st.cp.Blocked {
		return r.result(st, StatusBlocked), nil
	}
	return r.result(st, StatusCompleted), nil
}

func (r *Runner) save(st *runState) error {
	st.cp.UpdatedAt = r.now()
	if err := r.store.Save(st.path, st.cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	r.bus.Publish(types.NewCheckpointSavedEvent(st.sessionID, st.path, !st.cp.Completed))
	return nil
}

func (r *Runner) progress(st *runState, status types.RunStatus, actionName, detail string) {
	r.bus.Publish(types.NewRunProgressEvent(st.sessionID, types.RunProgress{
		Status:   status,
		Step:     st.cp.Steps,
		MaxSteps: st.cp.MaxSteps,
		URL:      st.cp.LastURL,
		Detail:   detail,
		Action:   actionName,
	}))
}

func (r *Runner) result(st *runState, status Status) *Result {
	cp := st.cp
	finalURL := r.driver.CurrentURL()
	if finalURL == "" {
		finalURL = cp.LastURL
	}
	return &Result{
		Status:                status,
		Completed:             cp.Completed,
		Blocked:               cp.Blocked,
		BlockedReason:         cp.BlockedReason,
		Actions:               append([]string{}, cp.Actions...),
		ActionHistory:         append([]checkpoint.HistoryEntry{}, cp.ActionHistory...),
		PagesVisited:          append([]string{}, cp.PagesVisited...),
		FinalURL:              finalURL,
		Steps:                 cp.Steps,
		MaxSteps:              cp.MaxSteps,
		CheckpointPath:        st.path,
		ResumedFromCheckpoint: st.resumed,
		Analysis:              cp.FinalAnalysis,
		Provider:              cp.Provider,
		Model:                 cp.Model,
	}
}
