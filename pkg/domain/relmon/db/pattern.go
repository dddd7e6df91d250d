package db

import (
	"regexp"
	"strings"
)

// LikePattern translates a name pattern ("*" as wildcard) into SQL LIKE pattern.
//
// "%", "_" and "\" in the pattern are escaped with "\".
func LikePattern(pattern string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)
	return r.Replace(pattern)
}

// MatchPattern reports name matches pattern ("*" as wildcard), case insensitively.
func MatchPattern(pattern string, name string) bool {
	parts := strings.Split(pattern, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	re, err := regexp.Compile("(?is)^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

// CompareId orders RelMon ids.
//
// Ids are decimal timestamps, so shorter is older. Ties are broken lexically.
func CompareId(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
