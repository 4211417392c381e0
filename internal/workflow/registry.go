package workflow

import (
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// Options configures a Registry.
type Options struct {
	// Builtin overrides the embedded built-in definitions (used in tests).
	Builtin fs.FS

	// Community selects opt-in community definitions.
	Community *CommunitySource

	// UserDir is the directory of user definitions. Empty disables them.
	UserDir string
}

// Registry holds every loaded workflow definition, keyed by name.
type Registry struct {
	userDir string

	mu       sync.RWMutex
	fixed    []*Definition // built-in then community, loaded once
	byName   map[string]*Definition
	onReload []func()
}

// NewRegistry loads built-in, community and user definitions.
func NewRegistry(opts Options) (*Registry, error) {
	builtinFS := opts.Builtin
	if builtinFS == nil {
		builtinFS = BuiltinFS()
	}
	builtin, err := LoadFS(builtinFS, SourceBuiltIn)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		userDir: opts.UserDir,
		fixed:   append(builtin, LoadCommunity(opts.Community)...),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// UserDir returns the watched user directory, if any.
func (r *Registry) UserDir() string { return r.userDir }

// Reload re-reads the user directory and rebuilds the name index. Reload
// callbacks run after the new index is in place.
func (r *Registry) Reload() error {
	var user []*Definition
	if r.userDir != "" {
		var err error
		user, err = LoadDir(r.userDir)
		if err != nil {
			return err
		}
	}

	byName := make(map[string]*Definition, len(r.fixed)+len(user))
	for _, d := range r.fixed {
		if prev, ok := byName[d.Name]; ok {
			log.Warn(log.CatWorkflow, "Duplicate workflow name", "name", d.Name,
				"kept", d.Source.String(), "replaced", prev.Source.String())
		}
		byName[d.Name] = d
	}
	for _, d := range user {
		if prev, ok := byName[d.Name]; ok {
			log.Debug(log.CatWorkflow, "User workflow overrides", "name", d.Name, "replaced", prev.Source.String())
		}
		byName[d.Name] = d
	}

	r.mu.Lock()
	r.byName = byName
	callbacks := append([]func(){}, r.onReload...)
	r.mu.Unlock()

	log.Debug(log.CatWorkflow, "Loaded workflows", "count", len(byName), "user", len(user))
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// OnReload registers fn to run after every Reload.
func (r *Registry) OnReload(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Get returns the definition with the given name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// List returns every definition ordered by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sortByName(out)
	return out
}

// ListBySource returns the definitions from one source ordered by name.
func (r *Registry) ListBySource(source Source) []*Definition {
	var out []*Definition
	for _, d := range r.List() {
		if d.Source == source {
			out = append(out, d)
		}
	}
	return out
}

// Match returns the definitions with a trigger that matches prompt.
func (r *Registry) Match(prompt string) []*Definition {
	prompt = strings.ToLower(prompt)
	var out []*Definition
	for _, d := range r.List() {
		if matchesAnyTrigger(prompt, d.Triggers) {
			out = append(out, d)
		}
	}
	return out
}

// Search returns definitions whose triggers match query or whose name,
// description or category contains it. An empty query returns everything.
func (r *Registry) Search(query string) []*Definition {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return r.List()
	}
	var out []*Definition
	for _, d := range r.List() {
		if strings.Contains(strings.ToLower(d.Name), q) ||
			strings.Contains(strings.ToLower(d.Description), q) ||
			strings.Contains(strings.ToLower(d.Category), q) ||
			matchesAnyTrigger(q, d.Triggers) {
			out = append(out, d)
		}
	}
	return out
}

// FrameSpec resolves a workflow name into a frame spec.
func (r *Registry) FrameSpec(name string) (domain.FrameSpec, error) {
	d, ok := r.Get(name)
	if !ok {
		return domain.FrameSpec{}, &domain.WorkflowNotFoundError{Name: name}
	}
	return d.FrameSpec(), nil
}

// FrameSpecs resolves several names, failing on the first unknown one.
func (r *Registry) FrameSpecs(names []string) ([]domain.FrameSpec, error) {
	specs := make([]domain.FrameSpec, 0, len(names))
	for _, name := range names {
		spec, err := r.FrameSpec(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// matchesAnyTrigger reports whether a lower-cased prompt contains any trigger
// as a whole word. A * in a trigger matches any run of word characters.
// Triggers that are not valid patterns fall back to substring matching.
func matchesAnyTrigger(prompt string, triggers []string) bool {
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + strings.ReplaceAll(t, "*", `\w*`) + `\b`)
		if err != nil {
			if strings.Contains(prompt, t) {
				return true
			}
			continue
		}
		if re.MatchString(prompt) {
			return true
		}
	}
	return false
}

func sortByName(defs []*Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
}
