package utils

// Truncate shortens s to at most maxLen characters and appends "..." when
// anything was cut.
func Truncate(s string, maxLen int) string {
	head, cut := prefix(s, maxLen)
	if !cut {
		return s
	}
	return head + "..."
}

// Prefix returns the first n characters of s. It never splits a multi-byte
// character.
func Prefix(s string, n int) string {
	head, _ := prefix(s, n)
	return head
}

func prefix(s string, n int) (string, bool) {
	if n <= 0 {
		return "", s != ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
