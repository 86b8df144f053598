package sdk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xray-io/xray/apitypes"
)

type (
	// Client is the entry point for instrumentation. It owns the transport
	// and creates runs.
	Client struct {
		config    *Config
		transport *Transport
		sink      Sink
		logger    *slog.Logger
	}

	// Run is one execution of a named pipeline. It emits run_start on
	// creation and run_end exactly once on End or EndWithError.
	Run struct {
		id           uuid.UUID
		pipelineName string
		detail       apitypes.DetailLevel
		sink         Sink

		startedAt time.Time
		start     time.Time // monotonic reading, used for nothing but symmetry with steps

		mu        sync.Mutex
		ended     bool
		nextIndex int
	}

	// RunOption attaches optional tags to a run.
	RunOption func(*runSettings)

	runSettings struct {
		metadata    map[string]any
		requestID   string
		userID      string
		environment string
		detail      apitypes.DetailLevel
	}
)

// WithMetadata attaches a free-form metadata map to the run.
func WithMetadata(metadata map[string]any) RunOption {
	return func(s *runSettings) { s.metadata = metadata }
}

// WithRequestID tags the run with an upstream request identifier.
func WithRequestID(requestID string) RunOption {
	return func(s *runSettings) { s.requestID = requestID }
}

// WithUserID tags the run with a user identifier.
func WithUserID(userID string) RunOption {
	return func(s *runSettings) { s.userID = userID }
}

// WithEnvironment tags the run with a deployment environment name.
func WithEnvironment(environment string) RunOption {
	return func(s *runSettings) { s.environment = environment }
}

// WithDetail overrides the client's default detail level for this run.
func WithDetail(detail apitypes.DetailLevel) RunOption {
	return func(s *runSettings) { s.detail = detail }
}

// NewClient creates a client, loading configuration per LoadConfig
// precedence, and starts the transport worker.
func NewClient(opts ...Option) *Client {
	cfg := LoadConfig(opts...)
	logger := slog.Default()

	transport := NewTransport(cfg, logger)
	transport.Start()

	return &Client{
		config:    cfg,
		transport: transport,
		sink:      transport,
		logger:    logger,
	}
}

// Transport exposes the underlying transport for queue introspection.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Shutdown drains the transport. After Shutdown returns, events from
// still-live runs are dropped.
func (c *Client) Shutdown(timeout time.Duration) {
	c.transport.Shutdown(timeout)
}

// StartRun creates a run, emits run_start, and returns the live Run.
func (c *Client) StartRun(pipelineName string, input any, opts ...RunOption) *Run {
	settings := &runSettings{detail: c.config.DefaultDetail}
	for _, opt := range opts {
		opt(settings)
	}

	now := time.Now()

	run := &Run{
		id:           uuid.New(),
		pipelineName: pipelineName,
		detail:       settings.detail,
		sink:         c.sink,
		startedAt:    now.UTC(),
		start:        now,
	}

	event := &apitypes.RunStartEvent{
		EventType:    apitypes.KindRunStart,
		ID:           run.id,
		PipelineName: pipelineName,
		Status:       apitypes.RunStatusRunning,
		StartedAt:    run.startedAt,
		Metadata:     settings.metadata,
		RequestID:    settings.requestID,
		UserID:       settings.userID,
		Environment:  settings.environment,
	}

	if input != nil {
		event.InputSummary = Summarize(input)

		if run.detail == apitypes.DetailFull {
			event.Payloads = map[string]any{"input": input}
		}
	}

	run.sink.Send(event)

	return run
}

// ID returns the run identifier.
func (r *Run) ID() uuid.UUID {
	return r.id
}

// PipelineName returns the pipeline name the run was started with.
func (r *Run) PipelineName() string {
	return r.pipelineName
}

// StartStep creates a step within this run, assigns the next index, and
// emits step_start. Steps keep only the run's identifier, not the Run.
func (r *Run) StartStep(name string, stepType apitypes.StepType, input any, opts ...StepOption) *Step {
	r.mu.Lock()
	index := r.nextIndex
	r.nextIndex++
	r.mu.Unlock()

	return newStep(r.id, name, stepType, index, input, r.detail, r.sink, opts...)
}

// End emits run_end with status success. Idempotent: a second End (or an
// End after EndWithError) is a no-op.
func (r *Run) End(output any) {
	r.end(output, apitypes.RunStatusSuccess, "")
}

// EndWithError emits run_end with status error and the formatted error
// message.
func (r *Run) EndWithError(err error) {
	r.end(nil, apitypes.RunStatusError, formatError(err))
}

func (r *Run) end(output any, status apitypes.RunStatus, errorMessage string) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()

		return
	}

	r.ended = true
	r.mu.Unlock()

	event := &apitypes.RunEndEvent{
		EventType:    apitypes.KindRunEnd,
		ID:           r.id,
		Status:       status,
		EndedAt:      time.Now().UTC(),
		ErrorMessage: errorMessage,
		// A nil output still gets a null summary so stored rows always
		// carry an output_summary.
		OutputSummary: Summarize(output),
	}

	if output != nil && r.detail == apitypes.DetailFull {
		event.Payloads = map[string]any{"output": output}
	}

	r.sink.Send(event)
}

// formatError renders an error as "<TypeName>: <message>".
func formatError(err error) string {
	if err == nil {
		return ""
	}

	return fmt.Sprintf("%T: %v", err, err)
}
