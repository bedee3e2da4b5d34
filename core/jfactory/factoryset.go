package jfactory

import (
	"reflect"
	"sync"

	"github.com/janaframework/jana/errs"
)

type typeKey struct {
	typ reflect.Type
	tag string
}

type nameKey struct {
	name string
	tag  string
}

// FactorySet is the per-event typed cache mapping (type, tag) -> Factory,
// with an auxiliary (type name, tag) index for name-based lookup when the
// concrete type isn't known at the call site (spec component [D]).
type FactorySet struct {
	mu          sync.Mutex
	byType      map[typeKey]Factory
	byName      map[nameKey]Factory
	defaultTags map[string]string
}

// NewFactorySet constructs an empty FactorySet. defaultTags maps a class
// name to the tag that should be used when the caller doesn't specify one
// (spec §6, DEFTAG:<ClassName>).
func NewFactorySet(defaultTags map[string]string) *FactorySet {
	return &FactorySet{
		byType:      make(map[typeKey]Factory),
		byName:      make(map[nameKey]Factory),
		defaultTags: defaultTags,
	}
}

// Add registers f under (typ, f.Tag()) and the name-based fallback key,
// provided the primary key is not already occupied (first-writer-wins).
func (fs *FactorySet) Add(typ reflect.Type, f Factory) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.addLocked(typ, f)
}

func (fs *FactorySet) addLocked(typ reflect.Type, f Factory) {
	tk := typeKey{typ: typ, tag: f.Tag()}
	if _, exists := fs.byType[tk]; exists {
		return
	}
	fs.byType[tk] = f
	nk := nameKey{name: typ.Name(), tag: f.Tag()}
	if _, exists := fs.byName[nk]; !exists {
		fs.byName[nk] = f
	}
}

// defaultTagFor resolves the effective tag for className: the caller's
// explicit tag, or the DEFTAG override, or "".
func (fs *FactorySet) defaultTagFor(className, tag string) string {
	if tag != "" {
		return tag
	}
	if fs.defaultTags == nil {
		return ""
	}
	return fs.defaultTags[className]
}

// GetFactory resolves (typ, tag) via the primary key, falling back to the
// name-based key when typ is non-nil but unregistered under that exact
// type (e.g. a dynamically-loaded plugin type).
func (fs *FactorySet) GetFactory(typ reflect.Type, tag string) (Factory, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	effTag := fs.defaultTagFor(typ.Name(), tag)
	if f, ok := fs.byType[typeKey{typ: typ, tag: effTag}]; ok {
		return f, true
	}
	if f, ok := fs.byName[nameKey{name: typ.Name(), tag: effTag}]; ok {
		return f, true
	}
	return nil, false
}

// GetFactoryByName resolves a factory purely by its declared type name and
// tag, for call sites that never had a concrete reflect.Type (spec §4.C
// lookup policy step 2).
func (fs *FactorySet) GetFactoryByName(typeName, tag string) (Factory, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	effTag := fs.defaultTagFor(typeName, tag)
	f, ok := fs.byName[nameKey{name: typeName, tag: effTag}]
	return f, ok
}

// GetAs returns every registered Factory whose ConvertsTo() includes base,
// filtered by tag when tag is non-empty (spec §9 "GetAs<S>()").
func (fs *FactorySet) GetAs(base reflect.Type, tag string) []Factory {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []Factory
	for _, f := range fs.byType {
		if tag != "" && f.Tag() != tag {
			continue
		}
		for _, t := range f.ConvertsTo() {
			if t == base {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Merge adds every factory of other into fs, skipping any key already
// present (first-writer-wins), so a source-specific generator can overlay a
// base set without displacing it. Calling Merge twice with the same other
// is idempotent: the second call changes nothing.
func (fs *FactorySet) Merge(other *FactorySet) {
	if other == nil {
		return
	}
	other.mu.Lock()
	snapshot := make(map[typeKey]Factory, len(other.byType))
	for k, v := range other.byType {
		snapshot[k] = v
	}
	other.mu.Unlock()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	for k, f := range snapshot {
		fs.addLocked(k.typ, f)
	}
}

// ClearAll calls ClearData on every registered factory, used when an Event
// is released back to its pool (spec §3 Event lifecycle).
func (fs *FactorySet) ClearAll() {
	fs.mu.Lock()
	factories := make([]Factory, 0, len(fs.byType))
	for _, f := range fs.byType {
		factories = append(factories, f)
	}
	fs.mu.Unlock()
	for _, f := range factories {
		f.ClearData()
	}
}

// errNotFound constructs the FactoryNotFound error for a failed lookup.
func errNotFound(typeName, tag string) error {
	return errs.New(errs.CodeFactoryNotFound,
		errs.WithComponent(typeName),
		errs.WithMessage("no factory registered for tag "+tag),
	)
}
