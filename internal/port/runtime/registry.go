package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FallbackName is the adapter used when a requested name is unknown.
const FallbackName = "shell"

// ErrUnknownAdapter is returned by New for names nobody registered.
var ErrUnknownAdapter = errors.New("unknown runtime adapter")

// Factory is a constructor function that creates a new Adapter instance.
type Factory func(config map[string]string) (Adapter, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
	aliases   = make(map[string]string)
)

// Register makes an adapter factory available by name.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory, alias ...string) {
	mu.Lock()
	defer mu.Unlock()

	name = normalize(name)
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("runtime: duplicate registration for %q", name))
	}
	factories[name] = factory
	for _, a := range alias {
		aliases[normalize(a)] = name
	}
}

// New creates a new Adapter by name or alias using the registered factory.
func New(name string, config map[string]string) (Adapter, error) {
	mu.RLock()
	key := normalize(name)
	if target, ok := aliases[key]; ok {
		key = target
	}
	factory, ok := factories[key]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("runtime: %q: %w", name, ErrUnknownAdapter)
	}
	return factory(config)
}

// Available returns the names of all registered adapters, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve selects an adapter by name and never fails: an empty name selects
// the fallback, and an unknown or broken one selects it with a warning.
func Resolve(name string, config map[string]string) (Adapter, []string) {
	var warnings []string
	if normalize(name) == "" {
		name = FallbackName
	}
	a, err := New(name, config)
	if err == nil {
		return a, warnings
	}
	if errors.Is(err, ErrUnknownAdapter) {
		warnings = append(warnings,
			fmt.Sprintf("Unknown runtime adapter '%s', falling back to '%s'", name, FallbackName),
			"registered runtime adapters: "+strings.Join(Available(), ", "))
	} else {
		warnings = append(warnings, fmt.Sprintf("Runtime adapter '%s' unavailable (%v), falling back to '%s'", name, err, FallbackName))
	}

	a, err = New(FallbackName, config)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("fallback adapter unavailable: %v", err))
		return unavailable{reason: err.Error()}, warnings
	}
	return a, warnings
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// unavailable reports every invocation as failed when not even the
// fallback adapter is linked into the binary.
type unavailable struct{ reason string }

func (unavailable) Name() string { return "unavailable" }

func (u unavailable) Invoke(_ context.Context, _ Invocation) Result {
	return Result{
		ExitCode:  ExitInvocation,
		Stderr:    u.reason,
		ErrorKind: ErrorInvocation,
		Summary:   "No runtime adapter available",
	}
}
