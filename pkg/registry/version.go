package registry

import (
	"strconv"
	"strings"
)

// versionComponent is one dot-separated piece of a version string, parsed
// as an integer when possible.
type versionComponent struct {
	num     int
	str     string
	numeric bool
}

func parseVersion(v string) []versionComponent {
	parts := strings.Split(v, ".")
	comps := make([]versionComponent, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			comps[i] = versionComponent{num: n, numeric: true}
		} else {
			comps[i] = versionComponent{str: p}
		}
	}
	return comps
}

// CompareVersions imposes the registry's total order on dot-separated
// version strings for callers outside the package.
func CompareVersions(a, b string) int {
	return compareVersions(a, b)
}

// compareVersions imposes a total order on dot-separated version strings.
// Components parse as integers when possible and compare numerically;
// otherwise they compare as strings. At the same position a numeric
// component sorts before a non-numeric one, so "1.0.0" < "1.0.0-beta".
// Shorter versions sort before longer ones when they are a prefix.
func compareVersions(a, b string) int {
	ca, cb := parseVersion(a), parseVersion(b)
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	for i := 0; i < n; i++ {
		x, y := ca[i], cb[i]
		switch {
		case x.numeric && y.numeric:
			if x.num != y.num {
				if x.num < y.num {
					return -1
				}
				return 1
			}
		case x.numeric && !y.numeric:
			return -1
		case !x.numeric && y.numeric:
			return 1
		default:
			if x.str != y.str {
				if x.str < y.str {
					return -1
				}
				return 1
			}
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	}
	return 0
}
