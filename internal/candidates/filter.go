package candidates

import "path"

// FilterSort returns the candidates matching patterns, ordered by the first
// pattern each one matches and then by input order. A candidate appears at
// most once. Malformed patterns match nothing.
func FilterSort(patterns []string, candidates []Candidate, formatOf func(Candidate) string) []Candidate {
	if formatOf == nil {
		formatOf = FormatOf
	}
	formats := make([]string, len(candidates))
	for i, c := range candidates {
		formats[i] = formatOf(c)
	}

	seen := make([]bool, len(candidates))
	var result []Candidate
	for _, pattern := range patterns {
		for i, c := range candidates {
			if seen[i] || formats[i] == "" {
				continue
			}
			if ok, err := path.Match(pattern, formats[i]); err != nil || !ok {
				continue
			}
			seen[i] = true
			result = append(result, c)
		}
	}
	return result
}

// Matches reports whether any candidate matches any pattern.
func Matches(patterns []string, candidates []Candidate, formatOf func(Candidate) string) bool {
	return len(FilterSort(patterns, candidates, formatOf)) > 0
}
