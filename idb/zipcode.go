package idb

import (
	"fmt"
	"time"
)

const (
	// ZipcodeDetailLimit is the client count below which a distribution
	// bucket lists its client ids.
	ZipcodeDetailLimit = 10

	// DefaultChangeWindow is the zipcode change window used when neither
	// bound is given.
	DefaultChangeWindow = 25 * time.Hour

	// DefaultFrequencyWindowDays is used when ChangeFrequencyQuery.WindowDays is 0.
	DefaultFrequencyWindowDays = 30
	// MaxFrequencyWindowDays caps ChangeFrequencyQuery.WindowDays.
	MaxFrequencyWindowDays = 365
)

// ZipcodeBucket counts the enabled clients sharing a zipcode. Blank zipcodes
// are reported as UNKNOWN.
type ZipcodeBucket struct {
	Zipcode     string `json:"zipcode"`
	ClientCount int64  `json:"client_count"`
	// ClientIDs is only set for buckets smaller than ZipcodeDetailLimit.
	ClientIDs []int64 `json:"client_ids"`
}

// ZipcodeChange is one swap-free zipcode change log entry.
type ZipcodeChange struct {
	ClientID      int64     `json:"client_id"`
	ZipcodeBefore *string   `json:"zipcode_before"`
	ZipcodeAfter  *string   `json:"zipcode_after"`
	ChangeReason  *string   `json:"change_reason"`
	ChangeTime    time.Time `json:"change_time"`
}

// ZipcodeChangeQuery pages the changes logged between Start and End, both
// inclusive. A zero End is now and a zero Start is DefaultChangeWindow
// before now.
type ZipcodeChangeQuery struct {
	Start    time.Time
	End      time.Time
	Page     int
	PageSize int
}

// Validate checks the paging bounds and the window.
func (q ZipcodeChangeQuery) Validate() error {
	if err := validatePaging(q.Page, q.PageSize); err != nil {
		return err
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		return fmt.Errorf("%w: end must not be before start", ErrInvalidQuery)
	}
	return nil
}

// Offset is the number of rows skipped before the page.
func (q ZipcodeChangeQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// ZipcodeChangePage is the result of ZipcodeChanges.
type ZipcodeChangePage struct {
	Rows  []ZipcodeChange
	Total int64
}

// ZipcodeExclusion keeps a client out of the swap-free zipcode rules.
type ZipcodeExclusion struct {
	ID         int64      `json:"id"`
	ClientID   int64      `json:"client_id"`
	ReasonCode *string    `json:"reason_code"`
	AddedBy    *string    `json:"added_by"`
	AddedAt    *time.Time `json:"added_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	IsActive   bool       `json:"is_active"`
}

// ChangeFrequencyQuery pages the clients whose zipcode changed in the last
// WindowDays days, most changes first.
type ChangeFrequencyQuery struct {
	WindowDays int
	Page       int
	PageSize   int
}

// Validate checks the paging bounds and the window.
func (q ChangeFrequencyQuery) Validate() error {
	if err := validatePaging(q.Page, q.PageSize); err != nil {
		return err
	}
	if q.WindowDays < 1 || q.WindowDays > MaxFrequencyWindowDays {
		return fmt.Errorf("%w: window_days must be between 1 and %d", ErrInvalidQuery, MaxFrequencyWindowDays)
	}
	return nil
}

// Offset is the number of rows skipped before the page.
func (q ChangeFrequencyQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// ChangeFrequency is the number of zipcode changes of one client.
type ChangeFrequency struct {
	ClientID   int64     `json:"client_id"`
	Changes    int64     `json:"changes"`
	LastChange time.Time `json:"last_change"`
}

// ChangeFrequencyPage is the result of ZipcodeChangeFrequency.
type ChangeFrequencyPage struct {
	Rows  []ChangeFrequency
	Total int64
}

func validatePaging(page, pageSize int) error {
	if page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrInvalidQuery)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidQuery, MaxPageSize)
	}
	return nil
}
