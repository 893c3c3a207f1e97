// Package registry tracks the running simplet stacks of a process, keyed by
// "<service>_<identity>".
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artpar/simplets/internal/core/simplet"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when no stack is registered under a key.
	ErrNotFound = errors.New("no stack registered under key")

	// ErrDuplicateKey is returned by Put under the reject policy.
	ErrDuplicateKey = errors.New("stack already registered under key")

	// ErrUnknownPolicy is returned when parsing an unsupported policy name.
	ErrUnknownPolicy = errors.New("unknown collision policy")
)

// =============================================================================
// Collision Policy
// =============================================================================

// CollisionPolicy decides what Put does when the key is already taken.
type CollisionPolicy string

const (
	// PolicyReplace stores the new stack and hands back the old one.
	PolicyReplace CollisionPolicy = "replace"

	// PolicyReject keeps the existing stack and fails the Put.
	PolicyReject CollisionPolicy = "reject"
)

// ParsePolicy converts a configuration value into a CollisionPolicy.
// An empty string selects PolicyReplace.
func ParsePolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(s) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// =============================================================================
// Registry
// =============================================================================

// Entry is one registered stack.
type Entry struct {
	Key          string
	Kind         simplet.Kind
	Identity     string
	DeploymentID string // ledger record, may be empty
	DeployedAt   time.Time
	Stack        simplet.Stack

	// Failed marks a stack that failed to start but still holds engine
	// resources. It stays registered until removed.
	Failed bool
}

// Registry is a concurrency-safe map of running stacks.
type Registry struct {
	mu      sync.RWMutex
	policy  CollisionPolicy
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty registry.
func New(policy CollisionPolicy) *Registry {
	if policy == "" {
		policy = PolicyReplace
	}
	return &Registry{
		policy:  policy,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Policy returns the collision policy in effect.
func (r *Registry) Policy() CollisionPolicy {
	return r.policy
}

// Put registers e.Stack under RegistryKey(e.Kind, e.Identity). Key and
// DeployedAt are filled in by the registry.
//
// Under PolicyReplace the previous entry, if any, is returned with
// replaced=true; its stack keeps running and is now untracked. Under
// PolicyReject an occupied key yields ErrDuplicateKey.
func (r *Registry) Put(e Entry) (previous Entry, replaced bool, err error) {
	e.Key = simplet.RegistryKey(e.Kind, e.Identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced = r.entries[e.Key]
	if replaced && r.policy == PolicyReject {
		return Entry{}, false, fmt.Errorf("%w: %s", ErrDuplicateKey, e.Key)
	}

	e.DeployedAt = r.now()
	r.entries[e.Key] = e
	return previous, replaced, nil
}

// Add registers e only when its key is free, whatever the policy. An
// occupied key yields ErrDuplicateKey.
func (r *Registry) Add(e Entry) error {
	e.Key = simplet.RegistryKey(e.Kind, e.Identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, e.Key)
	}
	e.DeployedAt = r.now()
	r.entries[e.Key] = e
	return nil
}

// Get returns the entry stored under key.
func (r *Registry) Get(key string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return e, nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete removes and returns the entry stored under key.
func (r *Registry) Delete(key string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(r.entries, key)
	return e, nil
}

// List returns all entries ordered by key.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of registered stacks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
