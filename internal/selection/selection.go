// Package selection turns operator input into the ordered list of catalog
// entries a run processes, and formats such lists for logs.
package selection

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// RangeError reports one malformed item of a range expression.
type RangeError struct {
	Item   string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("error in range item %q: %s", e.Item, e.Reason)
}

// ParseRange expands a comma separated list of ids and "a-b" spans. An
// empty start means 1 and an empty end means last. Malformed items are
// returned as errors and skipped; the remaining ids keep their input order
// with duplicates dropped.
func ParseRange(spec string, last int) ([]int, []error) {
	var (
		ids  []int
		errs []error
		seen = make(map[int]struct{})
	)
	add := func(id int) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, raw := range strings.Split(spec, ",") {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		parts := strings.Split(item, "-")
		switch len(parts) {
		case 1:
			id, err := parseID(parts[0])
			if err != nil {
				errs = append(errs, &RangeError{Item: item, Reason: err.Error()})
				continue
			}
			add(id)
		case 2:
			lo, hi := 1, last
			var err error
			if s := strings.TrimSpace(parts[0]); s != "" {
				if lo, err = parseID(s); err != nil {
					errs = append(errs, &RangeError{Item: item, Reason: err.Error()})
					continue
				}
			}
			if s := strings.TrimSpace(parts[1]); s != "" {
				if hi, err = parseID(s); err != nil {
					errs = append(errs, &RangeError{Item: item, Reason: err.Error()})
					continue
				}
			}
			if lo > hi {
				errs = append(errs, &RangeError{Item: item, Reason: fmt.Sprintf("start %d after end %d", lo, hi)})
				continue
			}
			for id := lo; id <= hi; id++ {
				add(id)
			}
		default:
			errs = append(errs, &RangeError{Item: item, Reason: "too many '-'"})
		}
	}
	return ids, errs
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if id <= 0 {
		return 0, fmt.Errorf("ids start at 1")
	}
	return id, nil
}

// Compact renders ids with ascending runs of three or more collapsed to
// "a-b": [1 2 4 5 6 9] becomes "1 2 4-6 9".
func Compact(ids []int) string {
	var out []string
	for start := 0; start < len(ids); {
		end := start
		for end+1 < len(ids) && ids[end+1] == ids[end]+1 {
			end++
		}
		if end-start+1 <= 2 {
			for i := start; i <= end; i++ {
				out = append(out, strconv.Itoa(ids[i]))
			}
		} else {
			out = append(out, fmt.Sprintf("%d-%d", ids[start], ids[end]))
		}
		start = end + 1
	}
	return strings.Join(out, " ")
}

// Batches splits ids into consecutive groups of at most n.
func Batches(ids []int, n int) [][]int {
	if n <= 0 {
		n = 1
	}
	var out [][]int
	for start := 0; start < len(ids); start += n {
		end := min(start+n, len(ids))
		out = append(out, ids[start:end:end])
	}
	return out
}

// Intersect keeps the members of ids that also appear in allowed, in the
// order of ids.
func Intersect(ids, allowed []int) []int {
	set := make(map[int]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	var out []int
	for _, id := range ids {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// SortedUnique returns a sorted copy of ids without duplicates.
func SortedUnique(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
