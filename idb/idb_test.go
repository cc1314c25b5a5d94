package idb_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxdesk/dashboard-api/idb"
)

func TestClientSummaryQueryValidate(t *testing.T) {
	testcases := []struct {
		name     string
		page     int
		pageSize int
		errMsg   string
	}{
		{name: "first page", page: 1, pageSize: 50},
		{name: "max page size", page: 3, pageSize: idb.MaxPageSize},
		{name: "page zero", page: 0, pageSize: 50, errMsg: "page must be at least 1"},
		{name: "page size zero", page: 1, pageSize: 0, errMsg: "page_size must be between 1 and 1000"},
		{name: "page size too big", page: 1, pageSize: idb.MaxPageSize + 1, errMsg: "page_size must be between 1 and 1000"},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			err := idb.ClientSummaryQuery{Page: tc.page, PageSize: tc.pageSize}.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
			assert.True(t, errors.Is(err, idb.ErrInvalidQuery))
		})
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, idb.ClientSummaryQuery{Page: 1, PageSize: 25}.Offset())
	assert.Equal(t, 50, idb.ClientSummaryQuery{Page: 3, PageSize: 25}.Offset())
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, int64(0), idb.TotalPages(0, 50))
	assert.Equal(t, int64(1), idb.TotalPages(1, 50))
	assert.Equal(t, int64(1), idb.TotalPages(50, 50))
	assert.Equal(t, int64(2), idb.TotalPages(51, 50))
	assert.Equal(t, int64(0), idb.TotalPages(10, 0))
}

func TestSortFieldsAreFilterable(t *testing.T) {
	for field := range idb.ClientSummarySortFields {
		_, ok := idb.ClientSummaryFields[field]
		assert.True(t, ok, field)
	}
}

func TestReportDbByNameUnknown(t *testing.T) {
	_, _, err := idb.ReportDbByName("sqlite", "", idb.ReportDbOptions{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ReportDb factory for sqlite")
}
