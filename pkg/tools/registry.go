package tools

import (
	"sort"
	"sync"
	"time"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// drainDeadline bounds how long Unregister waits for in-flight
// invocations to finish before forcibly removing a tool.
const drainDeadline = 5 * time.Second

// Registry is the authoritative map of tool id to Tool. It exclusively
// owns tool descriptors.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Tool
	inflight map[string]*sync.WaitGroup
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*Tool),
		inflight: make(map[string]*sync.WaitGroup),
	}
}

// Register adds tool. Re-registration of the same id fails with a
// distinct error rather than silently overwriting the descriptor.
func (r *Registry) Register(tool *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.ID]; exists {
		return mcperrors.NewInternalError("tool already registered: "+tool.ID, nil)
	}
	r.tools[tool.ID] = tool
	r.inflight[tool.ID] = &sync.WaitGroup{}
	return nil
}

// Unregister removes toolID, so new invocations of it are refused, then
// waits up to drainDeadline for its in-flight invocations to finish
// before returning. It returns no error if toolID was
// never registered, matching the idempotent-removal behavior the
// session/tool lifecycle relies on during shutdown.
func (r *Registry) Unregister(toolID string) error {
	r.mu.Lock()
	wg, exists := r.inflight[toolID]
	if !exists {
		r.mu.Unlock()
		return nil
	}
	delete(r.tools, toolID)
	delete(r.inflight, toolID)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainDeadline):
	}
	return nil
}

// Lookup returns the Tool registered under toolID, or ToolNotFound.
func (r *Registry) Lookup(toolID string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[toolID]
	if !ok {
		return nil, mcperrors.NewToolNotFoundError("tool not found: "+toolID, nil)
	}
	return tool, nil
}

// ListMatching returns, in ascending id order, every Tool whose
// RequiredCapabilities are a subset of capabilities.
func (r *Registry) ListMatching(capabilities []string) []*Tool {
	have := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		have[c] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Tool
	for _, tool := range r.tools {
		if hasAll(have, tool.RequiredCapabilities) {
			matched = append(matched, tool)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

func hasAll(have map[string]struct{}, required []string) bool {
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// beginInvocation marks one in-flight call against toolID, for
// Unregister's drain to wait on. It returns false if toolID is no
// longer registered.
func (r *Registry) beginInvocation(toolID string) (*sync.WaitGroup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wg, ok := r.inflight[toolID]
	if !ok {
		return nil, false
	}
	wg.Add(1)
	return wg, true
}
