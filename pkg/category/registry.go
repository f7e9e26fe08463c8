package category

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/errors"
)

// Cascader performs the bulk memory-side effects of category
// mutations. The vector store client satisfies this directly.
type Cascader interface {
	UpdateCategory(ctx context.Context, oldName, newName string) (int, error)
	TrashByCategory(ctx context.Context, name string) (int, error)
	CountByCategory(ctx context.Context, name string) (int, error)
}

// EventKind identifies a registry mutation.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventRenamed EventKind = "renamed"
	EventDeleted EventKind = "deleted"
)

// Event is emitted to subscribers after every committed mutation so
// outer layers can refresh caller-facing schemas.
type Event struct {
	Kind     EventKind
	Category string
	Previous string // old name on renames, otherwise empty
}

// Registry is the in-memory category hierarchy. All reads and
// hierarchy writes go through its lock; memory cascades happen outside
// the lock through the Cascader.
type Registry struct {
	mu          sync.RWMutex
	categories  map[string]*Category
	cascader    Cascader
	subscribers []func(Event)
}

// NewRegistry returns a registry backed by the given cascader. A nil
// cascader is allowed for read-only uses such as graph builds.
func NewRegistry(cascader Cascader) *Registry {
	return &Registry{
		categories: make(map[string]*Category),
		cascader:   cascader,
	}
}

// Subscribe registers a callback invoked after each committed
// mutation. Callbacks run synchronously; keep them cheap.
func (registry *Registry) Subscribe(fn func(Event)) {
	registry.mu.Lock()
	registry.subscribers = append(registry.subscribers, fn)
	registry.mu.Unlock()
}

func (registry *Registry) emit(event Event) {
	registry.mu.RLock()
	subs := make([]func(Event), len(registry.subscribers))
	copy(subs, registry.subscribers)
	registry.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
}

// ParentOf returns the category's parent if set, otherwise the
// category's own name: top-level categories are their own family root.
// Unknown names resolve to themselves.
func (registry *Registry) ParentOf(name string) string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if cat, ok := registry.categories[name]; ok && cat.Parent != "" {
		return cat.Parent
	}

	return name
}

// Get returns a copy of the named category.
func (registry *Registry) Get(name string) (Category, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	cat, ok := registry.categories[name]

	if !ok {
		return Category{}, &errors.NotFoundError{Kind: "category", ID: name}
	}

	return *cat, nil
}

// List returns all categories sorted by name.
func (registry *Registry) List() []Category {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	out := make([]Category, 0, len(registry.categories))

	for _, cat := range registry.categories {
		out = append(out, *cat)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Children returns the names of every category whose parent is name.
func (registry *Registry) Children(name string) []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return registry.childrenLocked(name)
}

func (registry *Registry) childrenLocked(name string) []string {
	var children []string

	for _, cat := range registry.categories {
		if cat.Parent == name {
			children = append(children, cat.Name)
		}
	}

	sort.Strings(children)

	return children
}

// Create adds a new category. The name must be valid and unused, and
// the parent, if set, must exist and not close a cycle.
func (registry *Registry) Create(cat Category) error {
	if err := ValidateName(cat.Name); err != nil {
		return err
	}

	registry.mu.Lock()

	if _, exists := registry.categories[cat.Name]; exists {
		registry.mu.Unlock()
		return &errors.ConflictError{
			Resource: "category",
			Message:  "name already in use: " + cat.Name,
		}
	}

	if cat.Parent != "" {
		if _, ok := registry.categories[cat.Parent]; !ok {
			registry.mu.Unlock()
			return &errors.NotFoundError{Kind: "category", ID: cat.Parent}
		}

		if registry.wouldCreateCycleLocked(cat.Name, cat.Parent) {
			registry.mu.Unlock()
			return &errors.CircularDependencyError{
				Category: cat.Name,
				Parent:   cat.Parent,
			}
		}
	}

	now := time.Now().UTC()
	cat.CreatedAt = now
	cat.UpdatedAt = now
	registry.categories[cat.Name] = &cat
	registry.mu.Unlock()

	registry.emit(Event{Kind: EventCreated, Category: cat.Name})

	return nil
}

// EnsureStub synthesizes a minimal category the first time an unknown
// name is referenced by a write. Invalid names are rejected rather
// than stubbed.
func (registry *Registry) EnsureStub(name string) error {
	registry.mu.RLock()
	_, exists := registry.categories[name]
	registry.mu.RUnlock()

	if exists {
		return nil
	}

	return registry.Create(Category{
		Name:        name,
		Description: "auto-created on first reference",
	})
}

// Update edits a category's fields. Parent changes are rejected with
// CircularDependency before any mutation if they would close a cycle.
func (registry *Registry) Update(name string, mutate func(*Category)) error {
	registry.mu.Lock()

	cat, ok := registry.categories[name]

	if !ok {
		registry.mu.Unlock()
		return &errors.NotFoundError{Kind: "category", ID: name}
	}

	next := *cat
	mutate(&next)
	next.Name = cat.Name // renames go through Rename
	next.CreatedAt = cat.CreatedAt

	if next.Parent != cat.Parent && next.Parent != "" {
		if _, ok := registry.categories[next.Parent]; !ok {
			registry.mu.Unlock()
			return &errors.NotFoundError{Kind: "category", ID: next.Parent}
		}

		if registry.wouldCreateCycleLocked(name, next.Parent) {
			registry.mu.Unlock()
			return &errors.CircularDependencyError{
				Category: name,
				Parent:   next.Parent,
			}
		}
	}

	next.UpdatedAt = time.Now().UTC()
	*cat = next
	registry.mu.Unlock()

	registry.emit(Event{Kind: EventUpdated, Category: name})

	return nil
}

// WouldCreateCycle walks the parent chain upward from proposedParent
// and reports whether name is encountered.
func (registry *Registry) WouldCreateCycle(name, proposedParent string) bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return registry.wouldCreateCycleLocked(name, proposedParent)
}

func (registry *Registry) wouldCreateCycleLocked(name, proposedParent string) bool {
	current := proposedParent

	for current != "" {
		if current == name {
			return true
		}

		cat, ok := registry.categories[current]

		if !ok {
			return false
		}

		current = cat.Parent
	}

	return false
}

// RenameResult reports what a rename touched. Warning is non-nil when
// the memory cascade partially failed; the rename itself is still
// committed.
type RenameResult struct {
	MemoriesUpdated int   `json:"memories_updated"`
	ChildrenUpdated int   `json:"children_updated"`
	Warning         error `json:"-"`
}

// Rename changes a category's name. Children's parent references and
// the category itself are updated atomically under the registry lock;
// the memory cascade is best-effort and reported, never retried.
func (registry *Registry) Rename(ctx context.Context, oldName, newName string) (*RenameResult, error) {
	if err := ValidateName(newName); err != nil {
		return nil, err
	}

	registry.mu.Lock()

	cat, ok := registry.categories[oldName]

	if !ok {
		registry.mu.Unlock()
		return nil, &errors.NotFoundError{Kind: "category", ID: oldName}
	}

	if _, exists := registry.categories[newName]; exists {
		registry.mu.Unlock()
		return nil, &errors.ConflictError{
			Resource: "category",
			Message:  "name already in use: " + newName,
		}
	}

	now := time.Now().UTC()
	result := &RenameResult{}

	for _, child := range registry.childrenLocked(oldName) {
		registry.categories[child].Parent = newName
		registry.categories[child].UpdatedAt = now
		result.ChildrenUpdated++
	}

	renamed := *cat
	renamed.Name = newName
	renamed.UpdatedAt = now
	delete(registry.categories, oldName)
	registry.categories[newName] = &renamed

	registry.mu.Unlock()

	if registry.cascader != nil {
		count, err := registry.cascader.UpdateCategory(ctx, oldName, newName)
		result.MemoriesUpdated = count

		if err != nil {
			// The rename is committed; the memory cascade gap is an
			// eventual-consistency warning, not a failure.
			result.Warning = &errors.PartialFailure{
				Op:   "category rename cascade",
				Errs: []error{err},
			}
			log.Warn("category rename cascade incomplete",
				"old", oldName, "new", newName, "error", err)
		}
	}

	registry.emit(Event{Kind: EventRenamed, Category: newName, Previous: oldName})

	return result, nil
}

// DeleteOptions steer what happens to children and memories still
// referencing a deleted category.
type DeleteOptions struct {
	ReassignChildrenTo string
	ReassignMemoriesTo string
	RemoveMemories     bool
}

// Delete removes a category. It fails with Conflict while children or
// memories still reference it and no reassignment (or explicit
// removal) was requested.
func (registry *Registry) Delete(ctx context.Context, name string, opts DeleteOptions) error {
	registry.mu.Lock()

	if _, ok := registry.categories[name]; !ok {
		registry.mu.Unlock()
		return &errors.NotFoundError{Kind: "category", ID: name}
	}

	children := registry.childrenLocked(name)

	if len(children) > 0 && opts.ReassignChildrenTo == "" {
		registry.mu.Unlock()
		return &errors.ConflictError{
			Resource: "category",
			Message:  "category has children and no reassignment target was given",
		}
	}

	if opts.ReassignChildrenTo != "" {
		if _, ok := registry.categories[opts.ReassignChildrenTo]; !ok {
			registry.mu.Unlock()
			return &errors.NotFoundError{Kind: "category", ID: opts.ReassignChildrenTo}
		}

		if registry.wouldCreateCycleLocked(name, opts.ReassignChildrenTo) {
			registry.mu.Unlock()
			return &errors.CircularDependencyError{
				Category: name,
				Parent:   opts.ReassignChildrenTo,
			}
		}
	}

	registry.mu.Unlock()

	// The reassignment target follows the write path: unknown names
	// become stubs rather than dangling references.
	if opts.ReassignMemoriesTo != "" {
		if err := registry.EnsureStub(opts.ReassignMemoriesTo); err != nil {
			return err
		}
	}

	if registry.cascader != nil {
		count, err := registry.cascader.CountByCategory(ctx, name)

		if err != nil {
			return err
		}

		if count > 0 {
			switch {
			case opts.ReassignMemoriesTo != "":
				if _, err := registry.cascader.UpdateCategory(ctx, name, opts.ReassignMemoriesTo); err != nil {
					return err
				}
			case opts.RemoveMemories:
				if _, err := registry.cascader.TrashByCategory(ctx, name); err != nil {
					return err
				}
			default:
				return &errors.ConflictError{
					Resource: "category",
					Message:  "memories still reference the category; reassign or remove them first",
				}
			}
		}
	}

	now := time.Now().UTC()

	registry.mu.Lock()

	for _, child := range registry.childrenLocked(name) {
		registry.categories[child].Parent = opts.ReassignChildrenTo
		registry.categories[child].UpdatedAt = now
	}

	delete(registry.categories, name)
	registry.mu.Unlock()

	registry.emit(Event{Kind: EventDeleted, Category: name})

	return nil
}

// Snapshot returns a copy of every category, for export.
func (registry *Registry) Snapshot() []Category {
	return registry.List()
}

// Load replaces the registry content, for import. No events are
// emitted for individual categories; one synthetic update marks the
// reload.
func (registry *Registry) Load(categories []Category) {
	registry.mu.Lock()

	registry.categories = make(map[string]*Category, len(categories))

	for _, cat := range categories {
		copied := cat
		registry.categories[cat.Name] = &copied
	}

	registry.mu.Unlock()

	registry.emit(Event{Kind: EventUpdated, Category: "*"})
}
