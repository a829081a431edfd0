// Package linker links call sites to handlers. A call site is described by
// an operation; the linker asks its resolvers for a handler that performs the
// operation on targets of a given type, and caches the answer keyed by the
// operation's identity and the target type.
package linker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/funvibe/dynalink/internal/operation"
)

// ErrNoResolver is returned when no resolver can handle an operation on a
// target type.
var ErrNoResolver = errors.New("no resolver for operation")

var errNilOperation = fmt.Errorf("operation is nil: %w", operation.ErrNilArgument)

// Handler performs a linked operation on a target. For a named operation the
// name is already bound and args holds only the remaining operands; for an
// unnamed one args[0] is the name or index.
type Handler func(target any, args ...any) (any, error)

// Resolver produces handlers for operations on a target type.
type Resolver interface {
	// Resolve returns a handler for op on values of type target, or false if
	// this resolver does not handle the combination. target is nil for a
	// nil target value.
	Resolve(op operation.Operation, target reflect.Type) (Handler, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(op operation.Operation, target reflect.Type) (Handler, bool)

func (f ResolverFunc) Resolve(op operation.Operation, target reflect.Type) (Handler, bool) {
	return f(op, target)
}

var builtinResolvers = map[string]func() Resolver{
	"host": func() Resolver { return HostResolver{} },
}

// handlersByType is never mutated once stored in the cache.
type handlersByType map[reflect.Type]Handler

// Linker resolves and caches handlers. It is safe for concurrent use.
type Linker struct {
	config    *Config
	resolvers []Resolver
	logOut    io.Writer

	mu    sync.Mutex // serialises cache writers
	cache atomic.Pointer[operation.Table[handlersByType]]

	hits   atomic.Uint64
	misses atomic.Uint64
	resets atomic.Uint64
}

// Option configures a Linker.
type Option func(*Linker)

// WithResolver adds a resolver consulted after the configured built-ins.
func WithResolver(r Resolver) Option {
	return func(l *Linker) { l.resolvers = append(l.resolvers, r) }
}

// WithLogOutput sets where verbose traces go. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(l *Linker) { l.logOut = w }
}

// New creates a linker. A nil config means DefaultConfig. The linker keeps
// its own copy of cfg.
func New(cfg *Config, opts ...Option) (*Linker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.Resolvers = slices.Clone(cfg.Resolvers)
	if err := c.validate("config"); err != nil {
		return nil, err
	}
	c.setDefaults()

	l := &Linker{config: &c, logOut: os.Stderr}
	for _, name := range c.Resolvers {
		l.resolvers = append(l.resolvers, builtinResolvers[name]())
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cache.Store(operation.EmptyTable[handlersByType]())
	return l, nil
}

// Link returns the handler for op applied to target.
func (l *Linker) Link(op operation.Operation, target any) (Handler, error) {
	if op == nil {
		return nil, errNilOperation
	}
	typ := reflect.TypeOf(target)

	if byType, ok := l.cache.Load().Get(op); ok {
		if h, ok := byType[typ]; ok {
			l.hits.Add(1)
			return h, nil
		}
	}
	l.misses.Add(1)
	l.tracef("miss %s on %v", op, typ)

	for _, r := range l.resolvers {
		if h, ok := r.Resolve(op, typ); ok {
			l.store(op, typ, h)
			return h, nil
		}
	}
	return nil, fmt.Errorf("linking %s on %v: %w", op, typ, ErrNoResolver)
}

func (l *Linker) store(op operation.Operation, typ reflect.Type, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	table := l.cache.Load()
	prev, ok := table.Get(op)
	if !ok && table.Len() >= l.config.MaxEntries {
		l.tracef("cache full at %d operations, resetting", table.Len())
		l.resets.Add(1)
		table = operation.EmptyTable[handlersByType]()
	}

	next := make(handlersByType, len(prev)+1)
	for t, existing := range prev {
		next[t] = existing
	}
	next[typ] = h
	l.cache.Store(table.Put(op, next))
	l.tracef("linked %s on %v", op, typ)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
	Resets  uint64
}

func (l *Linker) Stats() Stats {
	return Stats{
		Entries: l.cache.Load().Len(),
		Hits:    l.hits.Load(),
		Misses:  l.misses.Load(),
		Resets:  l.resets.Load(),
	}
}

// Linked returns the operations currently cached.
func (l *Linker) Linked() []operation.Operation {
	return l.cache.Load().Keys()
}

func (l *Linker) tracef(format string, args ...any) {
	if !l.config.Verbose || l.logOut == nil {
		return
	}
	fmt.Fprintf(l.logOut, "[link] "+format+"\n", args...)
}

// CallSite is a single dynamic call location with a fixed operation.
type CallSite struct {
	ID     uuid.UUID
	Op     operation.Operation
	linker *Linker
}

// NewCallSite creates a call site for op.
func (l *Linker) NewCallSite(op operation.Operation) (*CallSite, error) {
	if op == nil {
		return nil, errNilOperation
	}
	return &CallSite{ID: uuid.New(), Op: op, linker: l}, nil
}

// Invoke links the call site against target and runs the handler.
func (cs *CallSite) Invoke(target any, args ...any) (any, error) {
	h, err := cs.linker.Link(cs.Op, target)
	if err != nil {
		return nil, fmt.Errorf("call site %s: %w", cs.ID, err)
	}
	return h(target, args...)
}

func (cs *CallSite) String() string {
	return fmt.Sprintf("%s@%s", cs.Op, cs.ID)
}
