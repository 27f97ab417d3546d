// Package router maps request paths onto handlers. Routes are tried in
// registration order and the first match wins.
package router

import (
	"go.uber.org/zap"

	"github.com/DimaCrafter/photonyx/core/http"
)

const coreOrigin = "core"

// Handler serves one matched request.
type Handler func(ctx *http.Context) http.Outcome

// Route is a compiled pattern bound to a handler.
type Route struct {
	Pattern string
	Matcher *PathMatcher
	Handler Handler
	// Origin is the module that registered the route, empty for core routes.
	Origin string
}

// Router holds the route table. It is filled during startup and only read
// once the server is accepting connections.
type Router struct {
	routes []*Route
	origin string
	logger *zap.Logger
}

// New returns an empty router.
func New(logger *zap.Logger) *Router {
	return &Router{logger: logger.Named("router")}
}

// Register compiles pattern and appends a route for it.
func (r *Router) Register(pattern string, handler Handler) error {
	matcher, err := Compile(pattern)
	if err != nil {
		r.logger.Error("route rejected", zap.String("module", r.originName()), zap.Error(err))
		return err
	}

	for _, existing := range r.routes {
		if existing.Pattern == pattern {
			r.logger.Warn("route shadowed by an earlier registration",
				zap.String("module", r.originName()),
				zap.String("pattern", pattern),
				zap.String("owner", existing.originName()))
			break
		}
	}

	r.routes = append(r.routes, &Route{
		Pattern: pattern,
		Matcher: matcher,
		Handler: handler,
		Origin:  r.origin,
	})
	r.logger.Info("registered route", zap.String("module", r.originName()), zap.String("pattern", pattern))
	return nil
}

// Match returns the first route matching path and its variables.
func (r *Router) Match(path string) (*Route, map[string]string, bool) {
	for _, route := range r.routes {
		if params, ok := route.Matcher.Exec(path); ok {
			return route, params, true
		}
	}
	return nil, nil, false
}

// WithModule tags every route fn registers with the module name.
func (r *Router) WithModule(name string, fn func(*Router)) {
	previous := r.origin
	r.origin = name
	defer func() { r.origin = previous }()

	fn(r)
}

// Routes returns the route table. The slice must not be modified.
func (r *Router) Routes() []*Route {
	return r.routes
}

func (r *Router) Len() int {
	return len(r.routes)
}

func (r *Router) originName() string {
	if r.origin == "" {
		return coreOrigin
	}
	return r.origin
}

func (route *Route) originName() string {
	if route.Origin == "" {
		return coreOrigin
	}
	return route.Origin
}
