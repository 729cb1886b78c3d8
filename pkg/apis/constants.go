package apis

const (
	// Request headers
	IfMatch = "If-Match"

	// Response headers
	Location = "Location"
	ETag     = "ETag"

	// Query parameters
	Filter = "filter"
)
