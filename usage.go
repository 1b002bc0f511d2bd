package refine

// Usage tracks token consumption as reported by the gateway's final
// usage frame. Zero when the gateway omits usage from the stream.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
