package bubbletea

// Truncate exports truncate for testing.
func Truncate(s string, width int) string {
	return truncate(s, width)
}
