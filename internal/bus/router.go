package bus

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Route binds a topic pattern to a handler. Routes with higher priority
// run first; routes sharing a priority run in registration order.
type Route struct {
	ID       string
	Name     string
	Pattern  *regexp.Regexp
	Priority int
	handler  Handler
	seq      uint64
}

// RouteInfo is a read-only description of a registered route.
type RouteInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Priority int    `json:"priority"`
}

// Router dispatches messages to handlers by matching topics against
// regular expression patterns. Matching is many-to-many: one message may
// trigger several routes, and routes never consume a message.
//
// Safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes map[string]*Route
	seq    uint64
	logger Logger
}

// NewRouter creates an empty router. A nil logger disables logging.
func NewRouter(logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		routes: make(map[string]*Route),
		logger: logger,
	}
}

// Add registers a regular expression route and returns a function that
// removes it. The returned function is safe to call more than once.
func (r *Router) Add(name string, pattern *regexp.Regexp, priority int, handler Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.seq++
	r.routes[id] = &Route{
		ID:       id,
		Name:     name,
		Pattern:  pattern,
		Priority: priority,
		handler:  handler,
		seq:      r.seq,
	}
	r.logger.Debug("route added", "name", name, "pattern", pattern.String(), "priority", priority)
	return r.removeFunc(id)
}

// AddExact registers a route that matches a single literal topic, by
// compiling the topic into an anchored, escaped pattern. Metacharacters
// in the topic carry no special meaning.
func (r *Router) AddExact(name, topic string, priority int, handler Handler) func() {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(topic) + "$")
	return r.Add(name, pattern, priority, handler)
}

// removeFunc builds an idempotent removal closure for the given route ID.
func (r *Router) removeFunc(id string) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if route, ok := r.routes[id]; ok {
			delete(r.routes, id)
			r.logger.Debug("route removed", "name", route.Name)
		}
	}
}

// Route dispatches a message to every route whose pattern matches the
// topic, in priority order. A panicking handler is contained and does
// not stop dispatch to later routes. Returns the number of routes that
// handled the message.
func (r *Router) Route(msg Message) int {
	matched := r.matching(msg.Topic)
	if len(matched) == 0 {
		r.logger.Warn("no route matched topic", "topic", msg.Topic)
		return 0
	}

	for _, route := range matched {
		r.dispatch(route, msg)
	}
	return len(matched)
}

func (r *Router) dispatch(route *Route, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("route handler panic",
				"name", route.Name,
				"topic", msg.Topic,
				"panic", fmt.Sprintf("%v", rec),
			)
		}
	}()
	route.handler(msg)
}

// matching returns the routes whose pattern matches topic, ordered by
// priority descending then registration order.
func (r *Router) matching(topic string) []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Route
	for _, route := range r.routes {
		if route.Pattern.MatchString(topic) {
			matched = append(matched, route)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].seq < matched[j].seq
	})
	return matched
}

// MatchingRoutes returns descriptions of the routes that would handle a
// message on the given topic, in dispatch order.
func (r *Router) MatchingRoutes(topic string) []RouteInfo {
	matched := r.matching(topic)
	infos := make([]RouteInfo, 0, len(matched))
	for _, route := range matched {
		infos = append(infos, routeInfo(route))
	}
	return infos
}

// Routes returns descriptions of all registered routes, ordered by
// priority descending then registration order.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	all := make([]*Route, 0, len(r.routes))
	for _, route := range r.routes {
		all = append(all, route)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].seq < all[j].seq
	})
	infos := make([]RouteInfo, 0, len(all))
	for _, route := range all {
		infos = append(infos, routeInfo(route))
	}
	return infos
}

// Len returns the number of registered routes.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Clear removes all routes.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = make(map[string]*Route)
	r.logger.Debug("all routes cleared")
}

func routeInfo(route *Route) RouteInfo {
	return RouteInfo{
		ID:       route.ID,
		Name:     route.Name,
		Pattern:  route.Pattern.String(),
		Priority: route.Priority,
	}
}
