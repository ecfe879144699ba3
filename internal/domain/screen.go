package domain

import "time"

// ScreenResult is one page of a screening query.
type ScreenResult struct {
	Instruments []Instrument `json:"stocks"`
	TotalCount  int          `json:"totalCount"`
	Page        int          `json:"page"`
	PageSize    int          `json:"pageSize"`
	TotalPages  int          `json:"totalPages"`
}

// TotalPages returns ceil(total / pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// MarketFreshness reports how many records a market holds and when the
// most recent one was written.
type MarketFreshness struct {
	Market      Market     `json:"market"`
	Count       int        `json:"count"`
	LastUpdated *time.Time `json:"lastUpdated"`
}
