// Package tenant carries the active tenant of a request.
//
// The tenant is held in a Slot attached to the request's context.Context.
// Every request gets its own slot from NewScope, so there is no state shared
// between goroutines serving different requests. The slot is cleared when the
// request ends, which also covers goroutines that kept a reference to the
// request context.
package tenant

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrMissingTenantContext is returned when code that needs a tenant runs
// without one bound.
var ErrMissingTenantContext = errors.New("tenant context missing")

// Slot holds the tenant id bound to one request. Zero means empty.
type Slot struct {
	id atomic.Uint64
}

// Set binds id to the slot, replacing any previous value. Setting zero clears it.
func (s *Slot) Set(id uint) {
	s.id.Store(uint64(id))
}

// Get returns the bound tenant id and whether one is bound.
func (s *Slot) Get() (uint, bool) {
	if s == nil {
		return 0, false
	}
	id := s.id.Load()
	return uint(id), id != 0
}

// Require returns the bound tenant id or ErrMissingTenantContext.
func (s *Slot) Require() (uint, error) {
	id, ok := s.Get()
	if !ok {
		return 0, ErrMissingTenantContext
	}
	return id, nil
}

// Clear removes the binding.
func (s *Slot) Clear() {
	if s != nil {
		s.id.Store(0)
	}
}

type slotKey struct{}

// NewScope returns a child context carrying a new, empty slot.
func NewScope(ctx context.Context) (context.Context, *Slot) {
	s := &Slot{}
	return context.WithValue(ctx, slotKey{}, s), s
}

// SlotFrom returns the slot attached to ctx, or nil.
func SlotFrom(ctx context.Context) *Slot {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(slotKey{}).(*Slot)
	return s
}

// Get returns the tenant bound in ctx. A context without a slot is empty.
func Get(ctx context.Context) (uint, bool) {
	return SlotFrom(ctx).Get()
}

// Require returns the tenant bound in ctx or ErrMissingTenantContext.
func Require(ctx context.Context) (uint, error) {
	return SlotFrom(ctx).Require()
}

// Bind attaches a new slot holding id to ctx. The returned release func
// clears the slot and must be called when the unit of work ends; it is meant
// for entry points that are not HTTP requests, such as jobs and tests.
func Bind(ctx context.Context, id uint) (context.Context, func()) {
	ctx, s := NewScope(ctx)
	s.Set(id)
	return ctx, s.Clear
}

// Run binds id for the duration of fn. The slot is cleared when fn returns,
// including when it panics.
func Run(ctx context.Context, id uint, fn func(ctx context.Context) error) error {
	ctx, release := Bind(ctx, id)
	defer release()
	return fn(ctx)
}
