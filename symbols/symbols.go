// Package symbols is the arena-backed symbol table shared by every stage of
// code generation. Symbols are referred to by integer handles.
package symbols

import (
	"fmt"
	"sync"

	"github.com/colorfulnotion/lirx64/x64errors"
)

// ID is a handle into a Table. The zero ID names no symbol.
type ID uint32

const NoSymbol ID = 0

type Linkage uint8

const (
	// External symbols are referenced but defined outside the module.
	External Linkage = iota
	// Internal symbols are defined here and not exported.
	Internal
	// Default symbols are defined here and exported.
	Default
)

func (l Linkage) String() string {
	switch l {
	case External:
		return "external"
	case Internal:
		return "internal"
	case Default:
		return "default"
	}
	return fmt.Sprintf("linkage(%d)", uint8(l))
}

// ParseLinkage is the inverse of Linkage.String.
func ParseLinkage(s string) (Linkage, bool) {
	switch s {
	case "external", "extern":
		return External, true
	case "internal":
		return Internal, true
	case "default", "":
		return Default, true
	}
	return 0, false
}

type Symbol struct {
	ID      ID
	Name    string
	Linkage Linkage
}

func (s Symbol) IsExternal() bool { return s.Linkage == External }

// Table interns names into IDs. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	byName map[string]ID
	syms   []Symbol // syms[0] is the NoSymbol placeholder
}

func NewTable() *Table {
	return &Table{
		byName: make(map[string]ID),
		syms:   []Symbol{{}},
	}
}

// Intern returns the handle for name, creating it if needed. A symbol first
// seen as External is upgraded when a defining linkage arrives.
func (t *Table) Intern(name string, linkage Linkage) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		if linkage != External && t.syms[id].Linkage == External {
			t.syms[id].Linkage = linkage
		}
		return id
	}
	return t.add(name, linkage)
}

// Declare defines name with the given linkage. Defining a name that already
// has a definition fails with ErrDuplicateSymbol.
func (t *Table) Declare(name string, linkage Linkage) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		prev := t.syms[id].Linkage
		if prev != External && linkage != External {
			return id, fmt.Errorf("%w: %q", x64errors.ErrDuplicateSymbol, name)
		}
		if linkage != External {
			t.syms[id].Linkage = linkage
		}
		return id, nil
	}
	return t.add(name, linkage), nil
}

func (t *Table) add(name string, linkage Linkage) ID {
	id := ID(len(t.syms))
	t.syms = append(t.syms, Symbol{ID: id, Name: name, Linkage: linkage})
	t.byName[name] = id
	return id
}

func (t *Table) Lookup(name string) (ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}

// Get returns the symbol for id; an unknown id yields the zero Symbol.
func (t *Table) Get(id ID) Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.syms) {
		return Symbol{}
	}
	return t.syms[id]
}

func (t *Table) Name(id ID) string {
	return t.Get(id).Name
}

// Len is the number of interned symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.syms) - 1
}

// All returns every symbol in interning order.
func (t *Table) All() []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Symbol(nil), t.syms[1:]...)
}
