package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"testing"

	"github.com/Strob0t/sddflow/internal/config"
	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
	"github.com/Strob0t/sddflow/internal/port/queuestore"
	"github.com/Strob0t/sddflow/internal/port/runtime"
	"github.com/Strob0t/sddflow/internal/service"
)

// memStore is an in-memory featurestore.Store. Documents are kept encoded
// so every load observes exactly what was last saved.
type memStore struct {
	mu    sync.Mutex
	name  string
	files map[string][]byte
}

var _ featurestore.Store = (*memStore)(nil)

func newMemStore(name string) *memStore {
	return &memStore{name: name, files: map[string][]byte{}}
}

func (m *memStore) Dir() string  { return "/features/" + m.name }
func (m *memStore) Name() string { return m.name }

func (m *memStore) LoadGraph(ctx context.Context) (*workflow.Graph, error) {
	data, err := m.ReadArtifact(ctx, featurestore.WorkflowFile)
	if err != nil {
		return nil, err
	}
	g := workflow.NewGraph()
	if err := json.Unmarshal(data, g); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", featurestore.WorkflowFile, err)
	}
	return g, nil
}

func (m *memStore) SaveGraph(ctx context.Context, g *workflow.Graph) error {
	return m.WriteJSON(ctx, featurestore.WorkflowFile, g)
}

func (m *memStore) LoadContext(ctx context.Context) (*feature.Context, error) {
	data, err := m.ReadArtifact(ctx, featurestore.ContextFile)
	if err != nil {
		return nil, err
	}
	var c feature.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *memStore) SaveContext(ctx context.Context, c *feature.Context) error {
	return m.WriteJSON(ctx, featurestore.ContextFile, c)
}

func (m *memStore) ReadArtifact(_ context.Context, rel string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Clean(rel)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rel, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *memStore) WriteJSON(ctx context.Context, rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return m.WriteFile(ctx, rel, data)
}

func (m *memStore) WriteFile(_ context.Context, rel string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(rel)] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) has(rel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[rel]
	return ok
}

func (m *memStore) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// decode reads a JSON document written to the store.
func decode(t *testing.T, m *memStore, rel string, v any) {
	t.Helper()
	data, err := m.ReadArtifact(context.Background(), rel)
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", rel, err)
	}
}

func mustGraph(t *testing.T, m *memStore) *workflow.Graph {
	t.Helper()
	g, err := m.LoadGraph(context.Background())
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	return g
}

func mustTask(t *testing.T, g *workflow.Graph, id string) *workflow.Task {
	t.Helper()
	task, ok := g.Get(id)
	if !ok {
		t.Fatalf("task %s missing", id)
	}
	return task
}

func mustContext(t *testing.T, m *memStore) *feature.Context {
	t.Helper()
	c, err := m.LoadContext(context.Background())
	if err != nil {
		t.Fatalf("load context: %v", err)
	}
	return c
}

// memQueue is an in-memory queuestore.Store handing out copies.
type memQueue struct {
	mu    sync.Mutex
	items []humanqueue.Item
}

var _ queuestore.Store = (*memQueue)(nil)

func (q *memQueue) List(_ context.Context) ([]*humanqueue.Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*humanqueue.Item, 0, len(q.items))
	for i := range q.items {
		it := q.items[i]
		out = append(out, &it)
	}
	return out, nil
}

func (q *memQueue) Append(_ context.Context, it *humanqueue.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, *it)
	return nil
}

func (q *memQueue) Update(_ context.Context, queueID string, fn func(*humanqueue.Item) error) (*humanqueue.Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].QueueID != queueID {
			continue
		}
		it := q.items[i]
		if err := fn(&it); err != nil {
			return nil, err
		}
		q.items[i] = it
		out := it
		return &out, nil
	}
	return nil, fmt.Errorf("queue_id not found: %s: %w", queueID, humanqueue.ErrItemNotFound)
}

func (q *memQueue) Location() string { return "memory" }

// simAdapter plays every agent with the simulated fixture generator and
// fails the tasks listed in fail.
type simAdapter struct {
	store *memStore
	sim   *service.ContextService

	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newSimAdapter(store *memStore) *simAdapter {
	return &simAdapter{store: store, sim: service.NewContextService(store), fail: map[string]bool{}}
}

func (a *simAdapter) Name() string { return "sim" }

func (a *simAdapter) Invoke(ctx context.Context, inv runtime.Invocation) runtime.Result {
	a.mu.Lock()
	a.calls = append(a.calls, inv.TaskID)
	fail := a.fail[inv.TaskID]
	a.mu.Unlock()

	if inv.Env["SDD_TASK_ID"] != inv.TaskID {
		return runtime.Result{ExitCode: 1, ErrorKind: runtime.ErrorInvocation, Summary: "missing SDD_TASK_ID"}
	}
	if fail {
		return runtime.Result{ExitCode: 3, Stderr: "boom\ntrace", ErrorKind: runtime.ErrorCommand, Summary: "Command failed with exit code 3"}
	}
	if err := service.SimulateTask(ctx, a.store, a.sim, inv.TaskID, inv.Agent); err != nil {
		return runtime.Result{ExitCode: 1, Stderr: err.Error(), ErrorKind: runtime.ErrorCommand, Summary: err.Error()}
	}
	return runtime.Result{Success: true, ErrorKind: runtime.ErrorNone, Summary: "ok"}
}

func (a *simAdapter) count(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == id {
			n++
		}
	}
	return n
}

func (a *simAdapter) invoked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// harness wires the services of one in-memory feature.
type harness struct {
	store    *memStore
	queue    *memQueue
	ctxSvc   *service.ContextService
	queueSvc *service.QueueService
	router   *service.RouterService
	adapter  *simAdapter
}

func newHarness(t *testing.T, template string) *harness {
	t.Helper()
	h := &harness{store: newMemStore("feat-1"), queue: &memQueue{}}
	h.ctxSvc = service.NewContextService(h.store)
	h.queueSvc = service.NewQueueService(h.store, h.ctxSvc, service.QueueBackends{
		File: func(string) queuestore.Store { return h.queue },
	})
	h.router = service.NewRouterService(h.store, h.ctxSvc, h.queueSvc)
	h.adapter = newSimAdapter(h.store)

	tmpl, err := config.BuiltinTemplate(template)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if _, err := service.InitFeature(context.Background(), h.store, h.ctxSvc, tmpl, service.InitOptions{}); err != nil {
		t.Fatalf("init feature: %v", err)
	}
	return h
}

func (h *harness) orchestrator(cfg service.OrchestratorConfig) *service.OrchestratorService {
	o := service.NewOrchestratorService(h.store, h.ctxSvc, h.router, cfg)
	o.SetAdapter(h.adapter)
	return o
}

// policy edits the feature's policy before a run.
func (h *harness) policy(t *testing.T, fn func(c *feature.Context)) {
	t.Helper()
	if _, err := h.ctxSvc.Update(context.Background(), func(c *feature.Context) error {
		fn(c)
		return nil
	}); err != nil {
		t.Fatalf("update context: %v", err)
	}
}

func boolPtr(b bool) *bool { return &b }

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

func mustTemplate(t *testing.T, name string) *config.WorkflowTemplate {
	t.Helper()
	tmpl, err := config.BuiltinTemplate(name)
	if err != nil {
		t.Fatalf("template %s: %v", name, err)
	}
	return tmpl
}
