package outputtype

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed types.yaml
var defaultRegistry []byte

// GenericFilename is used for types without their own filename template.
const GenericFilename = "pg{id}.generic"

// LogFilename names the per-entry engine log.
const LogFilename = "pg{id}.converter.log"

// Type describes one concrete output artifact kind.
type Type struct {
	Name       string
	Inputs     []string
	Filename   string
	Exclusions []string
	// Category keys the source size ceiling table.
	Category string
	// SkipRegistration types are neither verified nor registered after a build.
	SkipRegistration bool
}

// RequiresSource reports whether the type needs an input candidate.
func (t Type) RequiresSource() bool {
	return len(t.Inputs) > 0
}

// Generic reports whether the type falls back to the generic filename.
func (t Type) Generic() bool {
	return strings.TrimSpace(t.Filename) == ""
}

// OutputFilename renders the filename template for an entry.
func (t Type) OutputFilename(entryID int) string {
	tmpl := t.Filename
	if t.Generic() {
		tmpl = GenericFilename
	}
	return RenderFilename(tmpl, entryID)
}

// RenderFilename substitutes the entry id into a filename template.
func RenderFilename(tmpl string, entryID int) string {
	return strings.ReplaceAll(tmpl, "{id}", strconv.Itoa(entryID))
}

// Group is a named set of members that expands into concrete types.
type Group struct {
	Name    string
	Members []string
}

type typeDoc struct {
	Name             string   `yaml:"name"`
	Inputs           []string `yaml:"inputs"`
	InputsFrom       string   `yaml:"inputs_from"`
	Filename         string   `yaml:"filename"`
	Exclusions       []string `yaml:"exclusions"`
	Category         string   `yaml:"category"`
	SkipRegistration bool     `yaml:"skip_registration"`
}

type groupDoc struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

type registryDoc struct {
	PatternSets map[string][]string `yaml:"pattern_sets"`
	Types       []typeDoc           `yaml:"types"`
	Groups      []groupDoc          `yaml:"groups"`
	BuildOrder  []string            `yaml:"build_order"`
}

// Registry is the validated, immutable set of output types, dependency groups
// and build order.
type Registry struct {
	types    map[string]Type
	groups   []Group
	children map[string][]string
	order    []string
	position map[string]int
}

// Load reads a registry from path, or the embedded default when path is empty.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultRegistry)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read output types %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("output types %s: %w", path, err)
	}
	return reg, nil
}

// Default returns the embedded registry.
func Default() (*Registry, error) {
	return Parse(defaultRegistry)
}

// Parse decodes and validates a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var doc registryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalidf("decode: %v", err)
	}
	return build(doc)
}

func build(doc registryDoc) (*Registry, error) {
	if len(doc.BuildOrder) == 0 {
		return nil, invalidf("build_order is empty")
	}
	sets, err := resolvePatternSets(doc.PatternSets)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]typeDoc, len(doc.Types))
	for _, td := range doc.Types {
		name := strings.TrimSpace(td.Name)
		if name == "" {
			return nil, invalidf("type without name")
		}
		if _, dup := raw[name]; dup {
			return nil, invalidf("type %q declared twice", name)
		}
		td.Name = name
		raw[name] = td
	}

	reg := &Registry{
		types:    make(map[string]Type, len(raw)),
		children: make(map[string][]string, len(doc.Groups)),
		position: make(map[string]int, len(doc.BuildOrder)),
	}
	for name, td := range raw {
		inputs, err := resolveInputs(name, raw, sets, map[string]bool{})
		if err != nil {
			return nil, err
		}
		exclusions, err := expandPatterns(td.Exclusions, sets)
		if err != nil {
			return nil, invalidf("type %q exclusions: %v", name, err)
		}
		category := strings.TrimSpace(td.Category)
		if category == "" {
			category = MainType(name)
		}
		reg.types[name] = Type{
			Name:             name,
			Inputs:           inputs,
			Filename:         strings.TrimSpace(td.Filename),
			Exclusions:       exclusions,
			Category:         category,
			SkipRegistration: td.SkipRegistration,
		}
	}

	for idx, name := range doc.BuildOrder {
		if _, dup := reg.position[name]; dup {
			return nil, invalidf("build_order lists %q twice", name)
		}
		if _, ok := reg.types[name]; !ok {
			return nil, invalidf("build_order references undeclared type %q", name)
		}
		reg.position[name] = idx
		reg.order = append(reg.order, name)
	}
	for name := range reg.types {
		if _, ok := reg.position[name]; !ok {
			return nil, invalidf("type %q missing from build_order", name)
		}
	}

	for _, gd := range doc.Groups {
		name := strings.TrimSpace(gd.Name)
		if name == "" {
			return nil, invalidf("group without name")
		}
		if _, dup := reg.children[name]; dup {
			return nil, invalidf("group %q declared twice", name)
		}
		if len(gd.Members) == 0 {
			return nil, invalidf("group %q has no members", name)
		}
		members := append([]string(nil), gd.Members...)
		reg.children[name] = members
		reg.groups = append(reg.groups, Group{Name: name, Members: members})
	}

	if err := reg.validateAcyclic(); err != nil {
		return nil, err
	}
	return reg, nil
}

func resolvePatternSets(raw map[string][]string) (map[string][]string, error) {
	resolved := make(map[string][]string, len(raw))
	var visit func(name string, stack []string) ([]string, error)
	visit = func(name string, stack []string) ([]string, error) {
		if out, ok := resolved[name]; ok {
			return out, nil
		}
		if slices.Contains(stack, name) {
			return nil, cycleError(append(stack, name))
		}
		patterns, ok := raw[name]
		if !ok {
			return nil, invalidf("unknown pattern set %q", name)
		}
		var out []string
		for _, p := range patterns {
			if ref, isRef := strings.CutPrefix(p, "@"); isRef {
				nested, err := visit(ref, append(stack, name))
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
				continue
			}
			out = append(out, p)
		}
		resolved[name] = out
		return out, nil
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func expandPatterns(patterns []string, sets map[string][]string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if ref, isRef := strings.CutPrefix(p, "@"); isRef {
			set, ok := sets[ref]
			if !ok {
				return nil, fmt.Errorf("unknown pattern set %q", ref)
			}
			out = append(out, set...)
			continue
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func resolveInputs(name string, raw map[string]typeDoc, sets map[string][]string, seen map[string]bool) ([]string, error) {
	td := raw[name]
	if from := strings.TrimSpace(td.InputsFrom); from != "" {
		if len(td.Inputs) > 0 {
			return nil, invalidf("type %q sets both inputs and inputs_from", name)
		}
		if _, ok := raw[from]; !ok {
			return nil, invalidf("type %q copies inputs from undeclared type %q", name, from)
		}
		if seen[name] {
			return nil, cycleError([]string{name, from})
		}
		seen[name] = true
		return resolveInputs(from, raw, sets, seen)
	}
	inputs, err := expandPatterns(td.Inputs, sets)
	if err != nil {
		return nil, invalidf("type %q inputs: %v", name, err)
	}
	return inputs, nil
}

// validateAcyclic walks the dependency groups depth-first and reports the
// first cycle found. Group names are visited in declaration order so the
// reported path is deterministic.
func (r *Registry) validateAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.children))
	var path []string
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			start := slices.Index(path, name)
			return cycleError(append(append([]string(nil), path[start:]...), name))
		case done:
			return nil
		}
		state[name] = visiting
		path = append(path, name)
		for _, child := range r.children[name] {
			if err := visit(child); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}
	for _, g := range r.groups {
		if err := visit(g.Name); err != nil {
			return err
		}
	}
	return nil
}

// MainType returns the coarse category of a type name: the part before the
// first dot.
func MainType(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}

// Lookup returns the concrete type with the given name.
func (r *Registry) Lookup(name string) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// MustLookup returns the named type or an ErrUnknownType error.
func (r *Registry) MustLookup(name string) (Type, error) {
	t, ok := r.types[name]
	if !ok {
		return Type{}, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// BuildOrder returns a copy of the fixed evaluation order.
func (r *Registry) BuildOrder() []string {
	return append([]string(nil), r.order...)
}

// Groups returns the dependency groups in declaration order.
func (r *Registry) Groups() []Group {
	out := make([]Group, len(r.groups))
	for i, g := range r.groups {
		out[i] = Group{Name: g.Name, Members: append([]string(nil), g.Members...)}
	}
	return out
}
