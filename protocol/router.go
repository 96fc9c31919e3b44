package protocol

import (
	"strings"
	"sync"
)

// HandlerFunc handles one request. fields holds every token of the request
// line, including the command names that selected the handler.
type HandlerFunc func(fields []string) string

// Router dispatches requests on the token at a fixed position. The top
// level router dispatches on the first token; a router registered as the
// handler for ANTENNA dispatches on the second.
type Router struct {
	index    int
	notFound string

	mu       sync.RWMutex
	names    []string
	handlers map[string]HandlerFunc
}

// NewRouter returns a router for the token at index that answers notFound
// when the token is missing or unregistered.
func NewRouter(index int, notFound string) *Router {
	return &Router{
		index:    index,
		notFound: notFound,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler. Names are case-insensitive; re-registering a
// name replaces its handler without changing its position.
func (r *Router) Register(name string, h HandlerFunc) {
	name = strings.ToUpper(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.handlers[name] = h
}

// Names lists registered names in registration order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

func (r *Router) Dispatch(fields []string) string {
	if len(fields) <= r.index {
		return r.notFound
	}
	r.mu.RLock()
	h, ok := r.handlers[strings.ToUpper(fields[r.index])]
	r.mu.RUnlock()
	if !ok {
		return r.notFound
	}
	return h(fields)
}

// Handle splits a request line on whitespace and dispatches it.
func (r *Router) Handle(line string) string {
	return r.Dispatch(strings.Fields(line))
}
