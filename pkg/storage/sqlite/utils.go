package sqlite

import (
	"fmt"
	"sort"
	"strings"
)

// buildWhereClause turns metadata filters into json_extract conditions. Keys
// are sorted so the generated SQL is stable.
func buildWhereClause(filters map[string]interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !identPattern.MatchString(k) {
			return "", nil, fmt.Errorf("invalid filter key %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		conditions = append(conditions, fmt.Sprintf("json_extract(metadata, '$.%s') = ?", k))
		args = append(args, filters[k])
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}
