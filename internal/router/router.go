// Package router maps an event's object_type tag to the reconciler for it.
package router

import (
	"errors"
	"fmt"
	"strings"

	"salesconsumer/internal/domain"
	"salesconsumer/internal/reconciler"
)

var (
	ErrDuplicateHandler  = errors.New("reconciler already registered for object type")
	ErrUnknownObjectType = domain.ErrUnknownObjectType
)

// Route is the result of resolving a tag. Routed is false when no
// reconciler handles the tag.
type Route struct {
	ObjectType domain.ObjectType
	Reconciler reconciler.Reconciler
	Routed     bool
}

// Router is built once at startup and is read-only afterwards.
type Router struct {
	routes map[domain.ObjectType]reconciler.Reconciler
}

func New(reconcilers ...reconciler.Reconciler) (*Router, error) {
	r := &Router{routes: make(map[domain.ObjectType]reconciler.Reconciler, len(reconcilers))}
	for _, rc := range reconcilers {
		if err := r.register(rc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Router) register(rc reconciler.Reconciler) error {
	t := rc.ObjectType()
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownObjectType, t)
	}
	if _, ok := r.routes[t]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, t)
	}
	r.routes[t] = rc
	return nil
}

// Resolve matches tag exactly after trimming surrounding whitespace.
func (r *Router) Resolve(tag string) Route {
	t := domain.ObjectType(strings.TrimSpace(tag))
	rc, ok := r.routes[t]
	if !ok {
		return Route{ObjectType: t}
	}
	return Route{ObjectType: t, Reconciler: rc, Routed: true}
}

// ObjectTypes lists the registered object types in declaration order.
func (r *Router) ObjectTypes() []domain.ObjectType {
	types := make([]domain.ObjectType, 0, len(r.routes))
	for _, t := range domain.ObjectTypes {
		if _, ok := r.routes[t]; ok {
			types = append(types, t)
		}
	}
	return types
}
