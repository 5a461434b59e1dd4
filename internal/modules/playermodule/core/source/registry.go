package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Opener opens one input of a registered kind
type Opener func(ctx context.Context, input types.PlayerInput, logger hclog.Logger) (Source, error)

// Registry routes inputs to the opener registered for their kind. Backends
// for container and capture formats register themselves at startup; blank
// and raw are always available.
type Registry struct {
	logger  hclog.Logger
	mu      sync.RWMutex
	openers map[types.InputKind]Opener
}

// NewRegistry creates a registry with the built-in openers.
func NewRegistry(logger hclog.Logger) *Registry {
	r := &Registry{
		logger:  logger.Named("sources"),
		openers: make(map[types.InputKind]Opener),
	}
	r.openers[types.InputBlank] = openBlank
	r.openers[types.InputRaw] = openRaw
	return r
}

// Register installs or replaces the opener for a kind.
func (r *Registry) Register(kind types.InputKind, opener Opener) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", playererrors.ErrUnsupportedKind, kind)
	}
	if opener == nil {
		return fmt.Errorf("nil opener for %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[kind] = opener
	r.logger.Debug("source opener registered", "kind", kind)
	return nil
}

// Supports reports whether an opener is registered for the kind.
func (r *Registry) Supports(kind types.InputKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.openers[kind]
	return ok
}

// Kinds lists the registered kinds in declaration order.
func (r *Registry) Kinds() []types.InputKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var kinds []types.InputKind
	for _, k := range types.InputKinds {
		if _, ok := r.openers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Open opens one input. Failures are returned as open errors carrying the input.
func (r *Registry) Open(ctx context.Context, input types.PlayerInput) (Source, error) {
	r.mu.RLock()
	opener, ok := r.openers[input.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, playererrors.OpenError("open_input", playererrors.ErrUnsupportedKind).WithInput(input.String())
	}

	src, err := opener(ctx, input, r.logger)
	if err != nil {
		return nil, playererrors.OpenError("open_input", err).WithInput(input.String())
	}
	return src, nil
}

func openBlank(_ context.Context, input types.PlayerInput, _ hclog.Logger) (Source, error) {
	return NewBlank(input, DefaultPicture())
}

func openRaw(_ context.Context, input types.PlayerInput, _ hclog.Logger) (Source, error) {
	return OpenRaw(input)
}
