package model

// Usage is a daily counter valid only for Date.
type Usage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UsageResult is the outcome of an atomic conditional increment.
type UsageResult struct {
	// Count is the stored count after the operation, already normalized to today.
	Count int
	// Applied is false when the count was already at or above the limit.
	Applied bool
}
