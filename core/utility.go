package core

func safeString(s string) string {
	if len(s) == 0 {
		return "\x00"
	}
	if s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

// safeStrings returns a terminated copy of every string, the given
// slice is left untouched. Callers hold on to the originals for
// comparisons against clean names reported by the API.
func safeStrings(list []string) []string {
	safe := make([]string, 0, len(list))
	for _, s := range list {
		safe = append(safe, safeString(s))
	}
	return safe
}
