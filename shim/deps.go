package shim

import "strings"

// ParseDeps splits a data-require value on commas. An element ending in a
// backslash escapes the comma that follows it: it is joined with the next
// element and the backslash dropped.
func ParseDeps(list string) []string {
	parts := strings.Split(list, ",")

	deps := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		dep := parts[i]
		for strings.HasSuffix(dep, `\`) && i+1 < len(parts) {
			i++
			dep = strings.TrimSuffix(dep, `\`) + "," + parts[i]
		}
		deps = append(deps, strings.TrimSuffix(dep, `\`))
	}
	return deps
}
