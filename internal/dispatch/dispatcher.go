// Package dispatch routes protocol envelopes to the tool registry and threads
// the global context through every CALL_TOOL.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"

	"toolcall/internal/ctxstore"
	"toolcall/internal/domain"
	"toolcall/internal/metrics"
	"toolcall/internal/protocol"
)

// unknownToolLabel keeps client-supplied ids out of metric labels.
const unknownToolLabel = "_unknown"

// Catalog is the read side of the tool registry.
type Catalog interface {
	List() []domain.ToolDescriptor
	Lookup(id string) (domain.Tool, bool)
}

type Config struct {
	Catalog Catalog
	Store   *ctxstore.Store
	Journal domain.Journal // optional
	Logger  *slog.Logger
}

type Dispatcher struct {
	catalog Catalog
	store   *ctxstore.Store
	journal domain.Journal
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config) *Dispatcher {
	if cfg.Store == nil {
		cfg.Store = ctxstore.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		journal: cfg.Journal,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// CallResult is the outcome of a CALL_TOOL that did not fail at protocol level.
type CallResult struct {
	RequestID string
	Output    any
	Reported  bool           // the tool described its own failure in Output
	Context   domain.Context // global context after fold-back
}

// Reply is a fully resolved envelope ready to be written to a transport.
type Reply struct {
	Response  protocol.Response
	Code      int
	RequestID string
}

// ListTools returns every registered descriptor in registration order.
func (d *Dispatcher) ListTools() []domain.ToolDescriptor {
	return d.catalog.List()
}

// Context returns a snapshot of the global context.
func (d *Dispatcher) Context() domain.Context {
	return d.store.Snapshot()
}

// CallTool runs one tool against the effective context and folds the
// returned context into the global store. On error the store is untouched and
// the error is a *domain.ToolNotFoundError or a *domain.CapabilityFault.
// RequestID is set in both cases.
func (d *Dispatcher) CallTool(ctx context.Context, toolID string, params map[string]any, clientCtx domain.Context) (CallResult, error) {
	reqID := ulid.Make().String()
	start := d.now()
	if params == nil {
		params = map[string]any{}
	}

	effective, base := d.store.Effective(clientCtx)

	t, ok := d.catalog.Lookup(toolID)
	if !ok {
		err := &domain.ToolNotFoundError{ToolID: toolID}
		d.logger.Warn("tool not found", "request_id", reqID, "tool", toolID)
		d.finish(ctx, reqID, unknownToolLabel, toolID, domain.OutcomeNotFound, err, start)
		return CallResult{RequestID: reqID}, err
	}

	d.logger.Debug("calling tool", "request_id", reqID, "tool", toolID, "params", len(params), "context_keys", len(effective))

	res, err := d.invoke(ctx, reqID, t, params, effective)
	if err != nil {
		fault := &domain.CapabilityFault{ToolID: toolID, Err: err}
		d.logger.Error("tool fault", "request_id", reqID, "tool", toolID, "err", err)
		d.finish(ctx, reqID, toolID, toolID, domain.OutcomeFault, fault, start)
		return CallResult{RequestID: reqID}, fault
	}

	global := d.store.Fold(ctxstore.Changes(base, res.Context))
	metrics.ContextKeys(len(global))

	outcome := domain.OutcomeSuccess
	if res.Reported {
		outcome = domain.OutcomeReported
		d.logger.Info("tool reported failure", "request_id", reqID, "tool", toolID)
	}
	d.finish(ctx, reqID, toolID, toolID, outcome, nil, start)

	return CallResult{
		RequestID: reqID,
		Output:    res.Output,
		Reported:  res.Reported,
		Context:   global,
	}, nil
}

// Dispatch validates and executes one envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) Reply {
	if err := req.Validate(); err != nil {
		metrics.CommandReceived("invalid")
		d.logger.Debug("rejected envelope", "err", err)
		resp, code := protocol.FromError(err)
		return Reply{Response: resp, Code: code}
	}
	metrics.CommandReceived(string(req.Command))

	switch req.Command {
	case protocol.ListTools:
		return Reply{Response: protocol.ListResponse(d.ListTools()), Code: http.StatusOK}
	default:
		res, err := d.CallTool(ctx, req.ToolID, req.Parameters, req.Context)
		if err != nil {
			resp, code := protocol.FromError(err)
			return Reply{Response: resp, Code: code, RequestID: res.RequestID}
		}
		return Reply{
			Response:  protocol.CallResponse(res.Output, res.Context),
			Code:      http.StatusOK,
			RequestID: res.RequestID,
		}
	}
}

// invoke runs the tool body, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, reqID string, t domain.Tool, params map[string]any, tc domain.Context) (res domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "request_id", reqID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Execute(ctx, params, tc)
}

func (d *Dispatcher) finish(ctx context.Context, reqID, label, toolID, outcome string, err error, start time.Time) {
	elapsed := d.now().Sub(start)
	metrics.ToolCall(label, outcome, elapsed.Seconds())

	if d.journal == nil {
		return
	}
	inv := domain.Invocation{
		RequestID: reqID,
		ToolID:    toolID,
		Outcome:   outcome,
		Duration:  elapsed,
		CreatedAt: start,
	}
	if err != nil {
		inv.Error = err.Error()
	}
	if jerr := d.journal.Record(context.WithoutCancel(ctx), inv); jerr != nil {
		d.logger.Warn("journal record failed", "request_id", reqID, "err", jerr)
	}
}
