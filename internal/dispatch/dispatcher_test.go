package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"toolcall/internal/ctxstore"
	"toolcall/internal/domain"
	"toolcall/internal/protocol"
	"toolcall/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// funcTool adapts a function to domain.Tool.
type funcTool struct {
	id string
	fn func(params map[string]any, tc domain.Context) (domain.Result, error)
}

func (f *funcTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{ID: f.id, Name: f.id, Parameters: map[string]string{}}
}

func (f *funcTool) Execute(_ context.Context, params map[string]any, tc domain.Context) (domain.Result, error) {
	return f.fn(params, tc)
}

// setTool writes params["key"] = params["value"] into the context.
func setTool() *funcTool {
	return &funcTool{id: "set", fn: func(params map[string]any, tc domain.Context) (domain.Result, error) {
		tc[params["key"].(string)] = params["value"]
		return domain.OK("ok", tc), nil
	}}
}

// readTool returns the effective value of params["key"].
func readTool() *funcTool {
	return &funcTool{id: "read", fn: func(params map[string]any, tc domain.Context) (domain.Result, error) {
		return domain.OK(tc[params["key"].(string)], tc), nil
	}}
}

type memJournal struct {
	mu      sync.Mutex
	entries []domain.Invocation
	err     error
}

func (m *memJournal) Record(_ context.Context, inv domain.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, inv)
	return m.err
}

func (m *memJournal) last() domain.Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func newDispatcher(t *testing.T, journal domain.Journal, extra ...domain.Tool) (*Dispatcher, *ctxstore.Store) {
	t.Helper()
	reg := tool.NewRegistry(testLogger())
	tools := []domain.Tool{
		tool.NewCodeGenerationTool(""),
		tool.NewDebuggingTool(),
		tool.NewTestingTool(),
		tool.NewDeploymentTool(""),
		tool.NewMonitoringTool(),
		tool.NewWebsiteCheckTool(tool.WebsiteConfig{}),
		tool.NewLocalCommandTool(tool.CommandConfig{Logger: testLogger()}),
		tool.NewLatestCommitTool(tool.GitHubConfig{APIBase: "http://127.0.0.1:1"}),
		setTool(),
		readTool(),
	}
	if err := reg.Register(append(tools, extra...)...); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	store := ctxstore.New()
	d := New(Config{Catalog: reg, Store: store, Journal: journal, Logger: testLogger()})
	return d, store
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

// --- LIST_TOOLS ---

func TestDispatch_ListToolsStable(t *testing.T) {
	d, store := newDispatcher(t, nil)

	first := d.Dispatch(context.Background(), protocol.Request{Command: protocol.ListTools})
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	for i := 0; i < 3; i++ {
		again := d.Dispatch(context.Background(), protocol.Request{Command: protocol.ListTools})
		if mustJSON(t, again.Response) != mustJSON(t, first.Response) {
			t.Fatal("LIST_TOOLS output changed between calls")
		}
	}

	ids := make([]string, 0, len(first.Response.Tools))
	for _, desc := range first.Response.Tools {
		ids = append(ids, desc.ID)
	}
	want := []string{"code_generation", "debugging", "testing", "deployment", "monitoring",
		"website_check", "local_command", "latest_commit", "set", "read"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("unexpected order %v", ids)
	}
	if store.Len() != 0 {
		t.Fatal("LIST_TOOLS must not touch the context")
	}
}

// --- Validation ---

func TestDispatch_InvalidCommand(t *testing.T) {
	d, store := newDispatcher(t, nil)
	store.Fold(domain.Context{"k": "v"})
	before := mustJSON(t, store.Snapshot())

	for _, cmd := range []protocol.Command{"", "RUN", "call_tool"} {
		reply := d.Dispatch(context.Background(), protocol.Request{Command: cmd, ToolID: "set",
			Parameters: map[string]any{"key": "x", "value": 1}})
		if reply.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", cmd, reply.Code)
		}
		if reply.Response.Status != protocol.StatusError || reply.Response.Message != "Invalid command." {
			t.Fatalf("%q: unexpected response %+v", cmd, reply.Response)
		}
	}
	if mustJSON(t, store.Snapshot()) != before {
		t.Fatal("invalid commands must not touch the context")
	}
}

// --- Context threading ---

func TestCallTool_Accumulates(t *testing.T) {
	d, store := newDispatcher(t, nil)
	ctx := context.Background()

	d.CallTool(ctx, "set", map[string]any{"key": "k1", "value": "a"}, nil)
	res, err := d.CallTool(ctx, "set", map[string]any{"key": "k2", "value": "b"}, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Context["k1"] != "a" || res.Context["k2"] != "b" {
		t.Fatalf("expected both keys in returned context, got %v", res.Context)
	}
	if snap := store.Snapshot(); snap["k1"] != "a" || snap["k2"] != "b" {
		t.Fatalf("expected both keys in global context, got %v", snap)
	}
}

func TestCallTool_Overwrites(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	ctx := context.Background()

	d.CallTool(ctx, "set", map[string]any{"key": "k", "value": "old"}, nil)
	res, _ := d.CallTool(ctx, "set", map[string]any{"key": "k", "value": "new"}, nil)
	if res.Context["k"] != "new" {
		t.Fatalf("expected later write to win, got %v", res.Context["k"])
	}
}

func TestCallTool_ClientContextWins(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	ctx := context.Background()

	d.CallTool(ctx, "set", map[string]any{"key": "user", "value": "global"}, nil)

	res, err := d.CallTool(ctx, "read", map[string]any{"key": "user"}, domain.Context{"user": "client"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Output != "client" {
		t.Fatalf("expected client value in effective context, got %v", res.Output)
	}
}

func TestCallTool_DefaultsParameters(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	res, err := d.CallTool(context.Background(), "deployment", nil, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Output != "Deployed successfully to staging." {
		t.Fatalf("unexpected output %v", res.Output)
	}
}

// --- Failure classes ---

func TestCallTool_NotFound(t *testing.T) {
	journal := &memJournal{}
	d, store := newDispatcher(t, journal)
	store.Fold(domain.Context{"k": "v", "n": 1.5})
	before := mustJSON(t, store.Snapshot())

	res, err := d.CallTool(context.Background(), "nonexistent", nil, domain.Context{"client": "x"})
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	if res.RequestID == "" {
		t.Fatal("expected request id on failure")
	}
	if mustJSON(t, store.Snapshot()) != before {
		t.Fatal("global context changed after unknown tool")
	}
	if inv := journal.last(); inv.Outcome != domain.OutcomeNotFound || inv.ToolID != "nonexistent" {
		t.Fatalf("unexpected journal entry %+v", inv)
	}

	reply := d.Dispatch(context.Background(), protocol.Request{Command: protocol.CallTool, ToolID: "nonexistent"})
	if reply.Code != http.StatusNotFound || reply.Response.Message != "Tool nonexistent not found." {
		t.Fatalf("unexpected reply %d %+v", reply.Code, reply.Response)
	}
}

func TestCallTool_MissingToolID(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	reply := d.Dispatch(context.Background(), protocol.Request{Command: protocol.CallTool})
	if reply.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing tool id, got %d", reply.Code)
	}
}

func TestCallTool_FaultLeavesContextUntouched(t *testing.T) {
	broken := &funcTool{id: "broken", fn: func(_ map[string]any, tc domain.Context) (domain.Result, error) {
		tc["partial"] = true
		return domain.Result{}, errors.New("disk on fire")
	}}
	journal := &memJournal{}
	d, store := newDispatcher(t, journal, broken)
	store.Fold(domain.Context{"k": "v"})
	before := mustJSON(t, store.Snapshot())

	_, err := d.CallTool(context.Background(), "broken", nil, nil)
	var fault *domain.CapabilityFault
	if !errors.As(err, &fault) || fault.ToolID != "broken" {
		t.Fatalf("expected CapabilityFault, got %v", err)
	}
	if mustJSON(t, store.Snapshot()) != before {
		t.Fatal("global context changed after a fault")
	}
	if inv := journal.last(); inv.Outcome != domain.OutcomeFault || inv.Error != "disk on fire" {
		t.Fatalf("unexpected journal entry %+v", inv)
	}

	reply := d.Dispatch(context.Background(), protocol.Request{Command: protocol.CallTool, ToolID: "broken"})
	if reply.Code != http.StatusInternalServerError || reply.Response.Message != "disk on fire" {
		t.Fatalf("unexpected reply %d %+v", reply.Code, reply.Response)
	}
}

func TestCallTool_PanicBecomesFault(t *testing.T) {
	panicky := &funcTool{id: "panicky", fn: func(map[string]any, domain.Context) (domain.Result, error) {
		panic("unexpected nil")
	}}
	d, store := newDispatcher(t, nil, panicky)

	_, err := d.CallTool(context.Background(), "panicky", nil, nil)
	var fault *domain.CapabilityFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected CapabilityFault, got %v", err)
	}
	if !strings.Contains(err.Error(), "unexpected nil") {
		t.Fatalf("expected panic value in message, got %q", err.Error())
	}
	if store.Len() != 0 {
		t.Fatal("context should be untouched after panic")
	}
}

func TestCallTool_ReportedFailureIsSuccess(t *testing.T) {
	journal := &memJournal{}
	d, store := newDispatcher(t, journal)

	res, err := d.CallTool(context.Background(), "local_command", map[string]any{"command": "exit 2"}, nil)
	if err != nil {
		t.Fatalf("reported failures are not errors: %v", err)
	}
	if !res.Reported {
		t.Fatal("expected Reported flag")
	}
	if _, ok := store.Snapshot()[tool.KeyCommandOutput]; !ok {
		t.Fatal("reported output should be folded into the context")
	}
	if inv := journal.last(); inv.Outcome != domain.OutcomeReported {
		t.Fatalf("expected reported outcome, got %+v", inv)
	}
}

func TestCallTool_JournalFailureDoesNotFailCall(t *testing.T) {
	d, _ := newDispatcher(t, &memJournal{err: errors.New("db locked")})
	if _, err := d.CallTool(context.Background(), "testing", nil, nil); err != nil {
		t.Fatalf("journal errors must not surface: %v", err)
	}
}

func TestCallTool_UniqueRequestIDs(t *testing.T) {
	journal := &memJournal{}
	d, _ := newDispatcher(t, journal)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		res, _ := d.CallTool(context.Background(), "testing", nil, nil)
		if seen[res.RequestID] {
			t.Fatalf("duplicate request id %s", res.RequestID)
		}
		seen[res.RequestID] = true
	}
	if len(journal.entries) != 20 {
		t.Fatalf("expected 20 journal entries, got %d", len(journal.entries))
	}
}

func TestCallTool_ConcurrentFolds(t *testing.T) {
	d, store := newDispatcher(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.CallTool(context.Background(), "set", map[string]any{"key": fmt.Sprintf("k%d", i), "value": i}, nil)
		}(i)
	}
	wg.Wait()

	if store.Len() != 50 {
		t.Fatalf("expected 50 keys, got %d", store.Len())
	}
}

func TestCallTool_SlowCallKeepsConcurrentWrite(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := &funcTool{id: "slow", fn: func(params map[string]any, tc domain.Context) (domain.Result, error) {
		close(started)
		<-release
		tc["slow_done"] = true
		return domain.OK("done", tc), nil
	}}
	d, store := newDispatcher(t, nil, slow)
	ctx := context.Background()

	d.CallTool(ctx, "set", map[string]any{"key": "k", "value": "old"}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := d.CallTool(ctx, "slow", nil, nil)
		done <- err
	}()
	<-started

	if _, err := d.CallTool(ctx, "set", map[string]any{"key": "k", "value": "new"}, nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("slow: %v", err)
	}

	snap := store.Snapshot()
	if snap["k"] != "new" {
		t.Fatalf("expected k=new after both calls complete, got %v", snap["k"])
	}
	if snap["slow_done"] != true {
		t.Fatalf("expected slow call's own key, got %v", snap)
	}
}

func TestCallTool_ClientContextPersists(t *testing.T) {
	d, store := newDispatcher(t, nil)
	ctx := context.Background()

	if _, err := d.CallTool(ctx, "read", map[string]any{"key": "user"}, domain.Context{"user": "client"}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := store.Snapshot()["user"]; got != "client" {
		t.Fatalf("expected client value folded into the global context, got %v", got)
	}
}

// --- Scenarios ---

func TestScenario_GenerateThenDebug(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	ctx := context.Background()

	gen := d.Dispatch(ctx, protocol.Request{
		Command:    protocol.CallTool,
		ToolID:     "code_generation",
		Parameters: map[string]any{"description": "auth endpoint", "language": "Python"},
	})
	if gen.Code != http.StatusOK {
		t.Fatalf("code_generation: %d %+v", gen.Code, gen.Response)
	}
	code, _ := gen.Response.Context[tool.KeyGeneratedCode].(string)
	if !strings.Contains(code, "auth endpoint") {
		t.Fatalf("expected generated code in context, got %v", gen.Response.Context)
	}

	dbg := d.Dispatch(ctx, protocol.Request{Command: protocol.CallTool, ToolID: "debugging"})
	if dbg.Code != http.StatusOK || dbg.Response.Output != "No issues found." {
		t.Fatalf("debugging: %d %+v", dbg.Code, dbg.Response)
	}
	if dbg.Response.Context[tool.KeyDebugResult] != "No issues found." {
		t.Fatal("expected debug_result in returned context")
	}
	if dbg.Response.Context[tool.KeyGeneratedCode] != code {
		t.Fatal("generated_code should still be present")
	}
}

func TestScenario_DebugOverrideFromClient(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	ctx := context.Background()

	d.CallTool(ctx, "code_generation", map[string]any{"description": "x"}, nil)
	res, _ := d.CallTool(ctx, "debugging", nil, domain.Context{tool.KeyGeneratedCode: "print(1)"})
	if res.Output != "Error: No function definition detected." {
		t.Fatalf("client-supplied code should win, got %v", res.Output)
	}
}

func TestScenario_WebsiteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d, _ := newDispatcher(t, nil)
	reply := d.Dispatch(context.Background(), protocol.Request{
		Command:    protocol.CallTool,
		ToolID:     "website_check",
		Parameters: map[string]any{"url": url},
	})
	if reply.Code != http.StatusOK || reply.Response.Status != protocol.StatusSuccess {
		t.Fatalf("expected success envelope, got %d %+v", reply.Code, reply.Response)
	}
	out, _ := reply.Response.Output.(string)
	if !strings.HasPrefix(out, "Error checking website:") {
		t.Fatalf("expected error description in output, got %q", out)
	}
	if reply.Response.Context[tool.KeyWebsiteStatus] != out {
		t.Fatal("expected website_status in context")
	}
}

func TestScenario_CommitWithoutCredential(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	d, store := newDispatcher(t, nil)
	store.Fold(domain.Context{"k": "v"})
	before := mustJSON(t, store.Snapshot())

	reply := d.Dispatch(context.Background(), protocol.Request{Command: protocol.CallTool, ToolID: "latest_commit"})
	if reply.Code != http.StatusInternalServerError || reply.Response.Status != protocol.StatusError {
		t.Fatalf("expected error envelope, got %d %+v", reply.Code, reply.Response)
	}
	if !strings.Contains(reply.Response.Message, "GITHUB_TOKEN") {
		t.Fatalf("unexpected message %q", reply.Response.Message)
	}
	if mustJSON(t, store.Snapshot()) != before {
		t.Fatal("global context changed after credential fault")
	}
}
