package dataaccess

import (
	"fmt"
	"sync"

	"github.com/alexanderramin/dax/internal/db"
)

// Target is where connections of one Kind go.
type Target struct {
	Engine db.Engine
	DSN    string
}

// Factory hands out connections by Kind. Targets are registered once at
// startup, typically from configuration.
type Factory struct {
	opts []Option

	mu      sync.RWMutex
	targets map[string]Target
}

// NewFactory returns an empty factory. opts apply to every connection it
// creates.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts, targets: make(map[string]Target)}
}

// Register sets the target for connections of kind, replacing any earlier
// registration.
func (f *Factory) Register(kind Kind, target Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[kind.Name()] = target
}

// Target returns the target registered for kind.
func (f *Factory) Target(kind Kind) (Target, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.targets[kind.Name()]
	return t, ok
}

// Open returns a new, unopened connection of kind K. It fails with
// ErrInvalidState when no target is registered for K.
func Open[K Kind](f *Factory) (*Connection[K], error) {
	var kind K
	target, ok := f.Target(kind)
	if !ok {
		return nil, newError(ErrInvalidState, "open", "",
			fmt.Errorf("no target registered for kind %q", kind.Name()))
	}
	return NewConnection[K](target.Engine, target.DSN, f.opts...), nil
}
