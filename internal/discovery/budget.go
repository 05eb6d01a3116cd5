package discovery

const (
	minOutputTokens = 1024
	maxOutputTokens = 8192
)

// TokenBudget sizes the completion output for n candidates:
// min(8192, max(1024, n*avgItemTokens+overhead, globalCap)).
func TokenBudget(n, avgItemTokens, overhead, globalCap int) int {
	return min(maxOutputTokens, max(minOutputTokens, n*avgItemTokens+overhead, globalCap))
}
