package outputtype

import (
	"fmt"
	"slices"
	"strings"
)

// Expand returns the requested names together with every name reachable
// through the dependency groups. Names that are not group keys are kept as
// they are.
func (r *Registry) Expand(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	var visit func(name string)
	visit = func(name string) {
		if _, seen := out[name]; seen {
			return
		}
		out[name] = struct{}{}
		for _, child := range r.children[name] {
			visit(child)
		}
	}
	for _, name := range names {
		visit(name)
	}
	return out
}

// ExpandOrdered expands names and returns the concrete types among them in
// build order. Group-only names drop out.
func (r *Registry) ExpandOrdered(names []string) []string {
	set := r.Expand(names)
	out := make([]string, 0, len(set))
	for _, name := range r.order {
		if _, ok := set[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Choices lists every name a user may request: everything reachable from
// the "everything" group, the group names themselves and all concrete types.
func (r *Registry) Choices() []string {
	roots := []string{"everything"}
	roots = append(roots, r.order...)
	set := r.Expand(roots)
	for _, g := range r.groups {
		set[g.Name] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// ParseNames splits comma or whitespace separated type lists, drops blanks and
// rejects names the registry does not know.
func (r *Registry) ParseNames(values []string) ([]string, error) {
	var names []string
	for _, value := range values {
		for _, field := range strings.FieldsFunc(value, func(c rune) bool { return c == ',' || c == ' ' || c == '\t' }) {
			names = append(names, field)
		}
	}
	choices := r.Choices()
	var unknown []string
	for _, name := range names {
		if _, ok := slices.BinarySearch(choices, name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, strings.Join(unknown, ", "))
	}
	return names, nil
}
