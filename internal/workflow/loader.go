package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zjrosen/vibe/internal/log"
)

// LoadFS parses every *.yaml and *.yml file at the root of fsys. Files that
// fail to parse are logged and skipped; empty files are ignored.
func LoadFS(fsys fs.FS, source Source) ([]*Definition, error) {
	var names []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := fs.Glob(fsys, pattern)
		if err != nil {
			return nil, err
		}
		names = append(names, m...)
	}
	sort.Strings(names)

	defs := make([]*Definition, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			log.Warn(log.CatWorkflow, "Failed to read workflow", "file", name, "source", source.String(), "error", err)
			continue
		}
		def, err := Parse(data, source, name)
		if errors.Is(err, ErrEmptyDefinition) {
			continue
		}
		if err != nil {
			log.Warn(log.CatWorkflow, "Skipping invalid workflow", "file", name, "source", source.String(), "error", err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadDir loads user definitions from dir. A missing directory yields no
// definitions. FilePath is set to the absolute file path.
func LoadDir(dir string) ([]*Definition, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading workflow directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workflow path %s is not a directory", dir)
	}

	defs, err := LoadFS(os.DirFS(dir), SourceUser)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		d.FilePath = filepath.Join(dir, filepath.FromSlash(d.FilePath))
	}
	return defs, nil
}

// CommunitySource holds the filesystem and opt-in filter for community
// workflows. A nil CommunitySource or empty Enabled list loads nothing.
type CommunitySource struct {
	FS      fs.FS
	Enabled []string
}

// LoadCommunity loads the enabled community workflows. Names may be given
// with or without a "community/" prefix. Names that match nothing are logged
// and ignored so a stale config never blocks startup.
func LoadCommunity(src *CommunitySource) []*Definition {
	if src == nil || src.FS == nil || len(src.Enabled) == 0 {
		return nil
	}

	all, err := LoadFS(src.FS, SourceCommunity)
	if err != nil {
		log.Warn(log.CatWorkflow, "Loading community workflows", "error", err)
		return nil
	}

	available := make(map[string]*Definition, len(all))
	for _, d := range all {
		available[d.Name] = d
	}

	var enabled []*Definition
	seen := make(map[string]bool)
	for _, name := range src.Enabled {
		key := strings.TrimPrefix(strings.TrimSpace(name), "community/")
		if seen[key] {
			continue
		}
		d, ok := available[key]
		if !ok {
			log.Warn(log.CatWorkflow, "Enabled community workflow not found",
				"name", name, "available", availableNames(all))
			continue
		}
		seen[key] = true
		enabled = append(enabled, d)
	}
	return enabled
}

func availableNames(defs []*Definition) string {
	if len(defs) == 0 {
		return "(none)"
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return strings.Join(names, ", ")
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
