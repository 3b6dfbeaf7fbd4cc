package tui

import (
	"regexp"
	"sort"
	"strings"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

// searchFields are the prefixes accepted in a search expression, e.g.
// "dest:orders" or "re:^ID:".
var searchFields = []string{"id", "body", "dest", "prop", "type", "re"}

// parseSearchQuery splits "field:query" into its parts. Unknown prefixes
// are treated as part of the query.
func parseSearchQuery(expr string) (field, query string) {
	if i := strings.IndexByte(expr, ':'); i > 0 {
		prefix := expr[:i]
		for _, f := range searchFields {
			if prefix == f {
				return f, expr[i+1:]
			}
		}
	}
	return "", expr
}

func compileSearchRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

func propertiesText(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(props[k])
		sb.WriteByte('\n')
	}
	return sb.String()
}

// matchesSearch reports whether msg matches query in field. query must
// already be lower-cased; re is used only for the "re" field.
func matchesSearch(msg message.Message, field, query string, re *regexp.Regexp) bool {
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), query) }

	switch field {
	case "id":
		return contains(msg.ID)
	case "body":
		return contains(msg.Body)
	case "dest":
		return contains(msg.Destination)
	case "prop":
		return contains(propertiesText(msg.Properties))
	case "type":
		return contains(msg.MessageType()) || contains(msg.Kind.String())
	case "re":
		if re == nil {
			return false
		}
		for _, s := range []string{msg.ID, msg.Destination, msg.Body, propertiesText(msg.Properties)} {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	default:
		return contains(msg.ID) || contains(msg.Destination) || contains(msg.Body)
	}
}

// computeFilteredIndices returns indices into msgs that match the search
// expression. Returns nil for empty expressions or invalid regex.
func computeFilteredIndices(msgs []message.Message, expr string) []int {
	if expr == "" {
		return nil
	}

	field, query := parseSearchQuery(expr)

	var re *regexp.Regexp
	if field == "re" {
		var err error
		re, err = compileSearchRegex(query)
		if err != nil {
			return nil
		}
	} else {
		query = strings.ToLower(query)
	}

	var indices []int
	for i, msg := range msgs {
		if matchesSearch(msg, field, query, re) {
			indices = append(indices, i)
		}
	}
	return indices
}

// nextVisible returns the first index in the sorted list after current,
// wrapping to the first one.
func nextVisible(indices []int, current int) int {
	if len(indices) == 0 {
		return current
	}
	idx := sort.SearchInts(indices, current+1)
	if idx < len(indices) {
		return indices[idx]
	}
	return indices[0]
}

// prevVisible returns the last index in the sorted list before current,
// wrapping to the last one.
func prevVisible(indices []int, current int) int {
	if len(indices) == 0 {
		return current
	}
	idx := sort.SearchInts(indices, current) - 1
	if idx >= 0 {
		return indices[idx]
	}
	return indices[len(indices)-1]
}

// isVisible returns true if idx is in the sorted list.
func isVisible(indices []int, idx int) bool {
	i := sort.SearchInts(indices, idx)
	return i < len(indices) && indices[i] == idx
}
