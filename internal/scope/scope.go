// Package scope releases native handles in reverse creation order.
//
// A Scope collects release functions as handles are created. Child scopes hold handles that
// depend on the parent's: closing a parent first closes every live child, newest first, and only
// then runs its own releases. Close is idempotent, so each handle is released exactly once no
// matter how many owners call it.
package scope

import "sync"

type Scope struct {
	name string

	mu       sync.Mutex
	parent   *Scope
	children []*Scope
	releases []release
	closed   bool
}

type release struct {
	what string
	fn   func()
}

// New creates a root scope.
func New(name string) *Scope {
	return &Scope{name: name}
}

func (s *Scope) Name() string {
	return s.name
}

// Child creates a scope whose handles depend on this one. A child of a closed scope is born
// closed.
func (s *Scope) Child(name string) *Scope {
	child := &Scope{name: name, parent: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		child.closed = true
		child.parent = nil
		return child
	}
	s.children = append(s.children, child)
	return child
}

// Defer registers fn to release what. If the scope is already closed fn runs immediately so
// nothing created late can leak.
func (s *Scope) Defer(what string, fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.releases = append(s.releases, release{what: what, fn: fn})
	s.mu.Unlock()
}

// Closed reports whether Close has run.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pending lists what is still held, in release order.
func (s *Scope) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []string
	for i := len(s.children) - 1; i >= 0; i-- {
		pending = append(pending, s.children[i].Pending()...)
	}
	for i := len(s.releases) - 1; i >= 0; i-- {
		pending = append(pending, s.releases[i].what)
	}
	return pending
}

// Close releases children then own handles, newest first.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	children := s.children
	releases := s.releases
	parent := s.parent
	s.children = nil
	s.releases = nil
	s.parent = nil
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].closeFromParent()
	}
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i].fn()
	}

	if parent != nil {
		parent.detach(s)
	}
}

func (s *Scope) closeFromParent() {
	s.mu.Lock()
	s.parent = nil
	s.mu.Unlock()
	s.Close()
}

func (s *Scope) detach(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
