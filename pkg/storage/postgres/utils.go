package postgres

import (
	"fmt"
	"sort"
	"strings"
)

// buildWhereClauseWithOffset builds a WHERE clause whose placeholders start at
// startIndex ($1 is taken by the query vector). Metadata filters compare the
// JSONB text value; a positive minScore adds a similarity floor.
func buildWhereClauseWithOffset(filters map[string]interface{}, minScore float64, startIndex int) (string, []interface{}, error) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := startIndex

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !identPattern.MatchString(k) {
			return "", nil, fmt.Errorf("invalid filter key %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		conditions = append(conditions, fmt.Sprintf("metadata->>'%s' = $%d", k, argIndex))
		args = append(args, fmt.Sprint(filters[k]))
		argIndex++
	}

	if minScore > 0 {
		conditions = append(conditions, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", argIndex))
		args = append(args, minScore)
	}

	if len(conditions) == 0 {
		return "", args, nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}
