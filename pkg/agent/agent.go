package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/events"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/go-go-golems/agentpilot/pkg/prompt"
	"github.com/go-go-golems/agentpilot/pkg/store"
	"github.com/go-go-golems/agentpilot/pkg/task"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Host is the chat context an agent responds in.
type Host interface {
	ContextID() int64
	// History returns the effective transcript in LLM format as seen by memberID.
	History(ctx context.Context, memberID int64) ([]conversation.LLMMessage, error)
	Transcript(ctx context.Context) (conversation.Transcript, error)
	LastRole(ctx context.Context) (conversation.Role, bool, error)
	SaveMessage(ctx context.Context, role conversation.Role, content string, memberID int64, log string) (*conversation.Message, error)
	InsertLog(ctx context.Context, kind string, message string) error
	// MemberOutputs maps the output placeholders of the other members to their last output.
	MemberOutputs(memberID int64) map[string]string
	Blocks(ctx context.Context) (map[string]string, error)
	// ConsumeStop reports and clears a pending stop request.
	ConsumeStop() bool
	SetMemberConfigValue(ctx context.Context, memberID int64, key string, value interface{}) error
	Enqueue(memberID int64, instruction string)
}

type ResponseOptions struct {
	// ExtraPrompt is an already formatted instruction for this response.
	ExtraPrompt  string
	MsgsInSystem bool
	// CheckForTasks lets the agent create or continue a task when the last message is from the user.
	CheckForTasks       bool
	AppendToLastMessage bool
}

type Response struct {
	Text string
	// Code is the confirmed code block, if the response ended with one.
	Code    *llm.CodeBlock
	Stopped bool
}

// ChunkHandler receives every forwarded chunk. Returning an error aborts the response.
type ChunkHandler func(c llm.Chunk) error

type Agent struct {
	MemberID int64

	host     Host
	client   llm.Client
	renderer *prompt.Renderer
	tasks    *task.Registry
	plugins  *PluginRegistry

	sem *semaphore.Weighted

	mu         sync.Mutex
	cfg        *config.AgentConfig
	state      State
	activeTask task.Task
	counter    *llm.TokenCounter
}

type Option func(*Agent)

func WithRenderer(r *prompt.Renderer) Option {
	return func(a *Agent) { a.renderer = r }
}

func WithTaskRegistry(r *task.Registry) Option {
	return func(a *Agent) { a.tasks = r }
}

func WithPluginRegistry(r *PluginRegistry) Option {
	return func(a *Agent) { a.plugins = r }
}

func New(memberID int64, cfg *config.AgentConfig, host Host, client llm.Client, options ...Option) (*Agent, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	ret := &Agent{
		MemberID: memberID,
		host:     host,
		client:   client,
		renderer: prompt.NewRenderer(),
		sem:      semaphore.NewWeighted(1),
		cfg:      cfg,
	}
	for _, o := range options {
		o(ret)
	}

	if ret.tasks == nil {
		ret.tasks = task.NewRegistry()
		if err := task.RegisterBuiltins(ret.tasks); err != nil {
			return nil, err
		}
	}
	if ret.plugins == nil {
		ret.plugins = NewPluginRegistry()
		if err := RegisterBuiltins(ret.plugins); err != nil {
			return nil, err
		}
	}
	if _, err := ret.plugin(); err != nil {
		return nil, err
	}

	return ret, nil
}

// Config returns a copy of the resolved configuration.
func (a *Agent) Config() *config.AgentConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Clone()
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ActiveTask is the task the agent is busy with, if any.
func (a *Agent) ActiveTask() task.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeTask
}

func (a *Agent) plugin() (Plugin, error) {
	name := a.cfg.UsePlugin
	if name == "" {
		name = DefaultPluginName
	}
	factory, err := a.plugins.Get(name)
	if err != nil {
		return nil, err
	}
	return factory(a.cfg)
}

func (a *Agent) setState(ctx context.Context, meta events.EventMetadata, s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()

	log.Debug().Int64("member_id", a.MemberID).Str("state", s.String()).Msg("agent state")
	events.PublishEventToContext(ctx, events.NewStateEvent(meta, s.String()))
}

// UpdateInstanceConfig stores a per-member runtime value under instance.<field>.
func (a *Agent) UpdateInstanceConfig(ctx context.Context, field string, value interface{}) error {
	if err := a.host.SetMemberConfigValue(ctx, a.MemberID, config.InstancePrefix+field, value); err != nil {
		return errors.Wrapf(err, "could not update instance config %s", field)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.SetInstance(field, value)
	return nil
}

// Respond produces this member's reply to the conversation, forwarding every chunk to emit.
func (a *Agent) Respond(ctx context.Context, emit func(memberID int64, c llm.Chunk)) (*Response, error) {
	return a.GetResponseStream(ctx, ResponseOptions{CheckForTasks: true}, func(c llm.Chunk) error {
		if emit != nil {
			emit(a.MemberID, c)
		}
		return nil
	})
}

// GetResponse runs a response and returns the assistant text.
func (a *Agent) GetResponse(ctx context.Context, opts ResponseOptions) (string, error) {
	resp, err := a.GetResponseStream(ctx, opts, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (a *Agent) GetResponseStream(ctx context.Context, opts ResponseOptions, onChunk ChunkHandler) (*Response, error) {
	if !a.sem.TryAcquire(1) {
		return nil, ErrResponseInFlight
	}
	defer a.sem.Release(1)

	cfg := a.Config()
	meta := events.EventMetadata{
		ResponseID: uuid.New(),
		ContextID:  a.host.ContextID(),
		MemberID:   a.MemberID,
		AgentName:  cfg.Name,
		Model:      cfg.Model,
	}
	defer a.setState(ctx, meta, StateIdle)

	if onChunk == nil {
		onChunk = func(llm.Chunk) error { return nil }
	}
	return a.getResponseStream(ctx, cfg, meta, opts, onChunk)
}

func (a *Agent) getResponseStream(
	ctx context.Context,
	cfg *config.AgentConfig,
	meta events.EventMetadata,
	opts ResponseOptions,
	onChunk ChunkHandler,
) (*Response, error) {
	a.setState(ctx, meta, StateTaskCheck)

	if opts.CheckForTasks && cfg.EnableActions {
		role, ok, err := a.host.LastRole(ctx)
		if err != nil {
			return nil, err
		}
		if ok && role == conversation.RoleUser {
			resp, handled, err := a.runTask(ctx, cfg, meta, onChunk)
			if handled {
				return resp, err
			}
		}
	}

	return a.respondDirect(ctx, cfg, meta, opts, onChunk)
}

// runTask creates or continues the active task. handled is false when there is no task to run.
func (a *Agent) runTask(
	ctx context.Context,
	cfg *config.AgentConfig,
	meta events.EventMetadata,
	onChunk ChunkHandler,
) (*Response, bool, error) {
	if a.ActiveTask() == nil || cfg.ReplaceBusyActionOnNew {
		t, err := a.newTask(ctx, cfg)
		if err != nil {
			return nil, true, err
		}
		if t.Status() != task.StatusCancelled {
			a.mu.Lock()
			a.activeTask = t
			a.mu.Unlock()
		}
	}

	t := a.ActiveTask()
	if t == nil {
		return nil, false, nil
	}

	a.setState(ctx, meta, StateTaskRunning)
	finished, response, err := task.Execute(ctx, t)
	if err != nil {
		log.Error().Err(err).Int64("member_id", a.MemberID).Str("objective", t.Objective()).Msg("task failed")
		if lerr := a.host.InsertLog(ctx, store.LogKindTaskError, err.Error()); lerr != nil {
			log.Warn().Err(lerr).Msg("could not log task error")
		}
		events.PublishEventToContext(ctx, events.NewTaskErrorEvent(meta, err))
		a.clearTask()

		instruction := prompt.FormatInstruction(fmt.Sprintf("[SAY] \"I failed the task\" (Task = `%s`)", t.Objective()))
		resp, err := a.getResponseStream(ctx, cfg, meta, ResponseOptions{ExtraPrompt: instruction}, onChunk)
		return resp, true, err
	}

	if response == "" {
		a.clearTask()
		return &Response{}, true, nil
	}
	if finished {
		a.clearTask()
	}

	resp, err := a.getResponseStream(ctx, cfg, meta, ResponseOptions{ExtraPrompt: prompt.FormatInstruction(response)}, onChunk)
	return resp, true, err
}

func (a *Agent) newTask(ctx context.Context, cfg *config.AgentConfig) (task.Task, error) {
	factory, err := a.tasks.Get(cfg.TaskPlugin)
	if err != nil {
		return nil, err
	}
	transcript, err := a.host.Transcript(ctx)
	if err != nil {
		return nil, err
	}
	return factory(ctx, task.Env{
		Transcript: transcript,
		Client:     a.client,
		Model:      cfg.Model,
		Notify: func(instruction string) {
			a.host.Enqueue(a.MemberID, instruction)
		},
	})
}

func (a *Agent) clearTask() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activeTask = nil
}

func (a *Agent) tokenCounter(model string) *llm.TokenCounter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counter == nil {
		c, err := llm.NewTokenCounter(model)
		if err != nil {
			log.Warn().Err(err).Msg("token counting disabled")
			return nil
		}
		a.counter = c
	}
	return a.counter
}

func (a *Agent) buildRequest(ctx context.Context, cfg *config.AgentConfig, opts ResponseOptions) (*llm.Request, error) {
	msgs, err := a.host.History(ctx, a.MemberID)
	if err != nil {
		return nil, err
	}
	if opts.ExtraPrompt != "" && opts.AppendToLastMessage && len(msgs) > 0 {
		return nil, ErrUnsupportedOperation
	}

	blocks, err := a.host.Blocks(ctx)
	if err != nil {
		return nil, err
	}

	if opts.MsgsInSystem && !cfg.MsgsInSystem {
		cfg = cfg.Clone()
		cfg.MsgsInSystem = true
	}
	system := a.renderer.SystemMessage(prompt.SystemMessageInput{
		Config:        cfg,
		MemberOutputs: a.host.MemberOutputs(a.MemberID),
		Blocks:        blocks,
		Instruction:   opts.ExtraPrompt,
		Messages:      msgs,
	})

	if cfg.MsgsInSystem {
		msgs = nil
	} else if cfg.MaxHistoryTokens > 0 {
		if counter := a.tokenCounter(cfg.Model); counter != nil {
			msgs = counter.TrimToBudget(system, msgs, cfg.MaxHistoryTokens)
		}
	}

	req := &llm.Request{
		Model:       cfg.Model,
		System:      system,
		Messages:    msgs,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	a.mu.Lock()
	plugin, err := a.plugin()
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := plugin.PrepareRequest(ctx, cfg, req); err != nil {
		return nil, errors.Wrap(err, "plugin could not prepare request")
	}
	return req, nil
}

func (a *Agent) respondDirect(
	ctx context.Context,
	cfg *config.AgentConfig,
	meta events.EventMetadata,
	opts ResponseOptions,
	onChunk ChunkHandler,
) (*Response, error) {
	a.setState(ctx, meta, StateDirectResponse)

	req, err := a.buildRequest(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	a.setState(ctx, meta, StateStreaming)
	events.PublishEventToContext(ctx, events.NewStartEvent(meta))

	stream, err := a.client.Stream(ctx, req)
	if err != nil {
		events.PublishEventToContext(ctx, events.NewErrorEvent(meta, err))
		return nil, err
	}
	reader := llm.NewChunkReader(stream)
	defer func() {
		_ = reader.Close()
	}()

	resp := &Response{}
	var text strings.Builder

loop:
	for {
		c, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			events.PublishEventToContext(ctx, events.NewErrorEvent(meta, err))
			var upstream *llm.UpstreamAPIError
			if errors.As(err, &upstream) {
				return nil, err
			}
			return nil, errors.Wrap(err, "could not read response stream")
		}

		if a.host.ConsumeStop() {
			log.Debug().Int64("member_id", a.MemberID).Msg("response stopped")
			resp.Stopped = true
			resp.Text = text.String()
			events.PublishEventToContext(ctx, events.NewInterruptEvent(meta, resp.Text))
			return resp, nil
		}

		switch c.Key {
		case llm.KeyPause:
			break loop
		case llm.KeyConfirm:
			resp.Code = c.Code
			if err := onChunk(c); err != nil {
				return nil, err
			}
			break loop
		case llm.KeyAssistant:
			text.WriteString(c.Text)
		}

		events.PublishEventToContext(ctx, events.NewPartialEvent(meta, string(c.Key), c.Text, text.String()))
		if err := onChunk(c); err != nil {
			return nil, err
		}
	}

	resp.Text = text.String()
	if err := a.commit(ctx, req, resp); err != nil {
		return nil, err
	}

	if resp.Code != nil {
		events.PublishEventToContext(ctx, events.NewConfirmEvent(meta, resp.Code.Language, resp.Code.Code))
	}
	events.PublishEventToContext(ctx, events.NewFinalEvent(meta, resp.Text))

	return resp, nil
}

func (a *Agent) commit(ctx context.Context, req *llm.Request, resp *Response) error {
	requestLog := req.Log()

	if err := a.host.InsertLog(ctx, store.LogKindPrompt, fmt.Sprintf("%s\n\n--- RESPONSE ---\n\n%s", requestLog, resp.Text)); err != nil {
		log.Warn().Err(err).Msg("could not log prompt")
	}

	if resp.Text != "" {
		_, err := a.host.SaveMessage(ctx, conversation.RoleAssistant, resp.Text, a.MemberID, requestLog)
		if err != nil && !errors.Is(err, conversation.ErrEmptyContent) {
			return errors.Wrap(err, "could not save assistant message")
		}
	}
	if resp.Code != nil {
		if _, err := a.host.SaveMessage(ctx, conversation.RoleCode, resp.Code.Markdown(), a.MemberID, requestLog); err != nil {
			return errors.Wrap(err, "could not save code message")
		}
	}
	return nil
}
