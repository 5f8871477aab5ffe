package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchFilterNormalizeDefaults(t *testing.T) {
	f := &SearchFilter{}
	f.Normalize()

	assert.NotNil(t, f.Status)
	assert.True(t, *f.Status, "status should default to active-only")
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPageSize, f.Limit)
}

func TestSearchFilterNormalizeClamps(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		limit     int
		wantPage  int
		wantLimit int
	}{
		{"zero page", 0, 20, 1, 20},
		{"negative page", -3, 20, 1, 20},
		{"limit above cap", 1, 500, 1, MaxPageSize},
		{"limit at cap", 1, 100, 1, 100},
		{"zero limit", 1, 0, 1, DefaultPageSize},
		{"negative limit", 1, -10, 1, DefaultPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &SearchFilter{Page: tt.page, Limit: tt.limit}
			f.Normalize()
			assert.Equal(t, tt.wantPage, f.Page)
			assert.Equal(t, tt.wantLimit, f.Limit)
		})
	}
}

func TestSearchFilterNormalizeKeepsExplicitStatus(t *testing.T) {
	inactive := false
	f := &SearchFilter{Status: &inactive}
	f.Normalize()

	assert.False(t, *f.Status)
}

func TestSearchFilterNormalizeSortWhitelist(t *testing.T) {
	f := &SearchFilter{
		Sort: []SortField{
			{Field: "name", Direction: "asc"},
			{Field: "password_hash", Direction: "ASC"},
			{Field: "email", Direction: "DESC"},
			{Field: "role", Direction: "sideways"},
		},
	}
	f.Normalize()

	assert.Equal(t, []SortField{
		{Field: "name", Direction: "ASC"},
		{Field: "email", Direction: "DESC"},
	}, f.Sort)
}

func TestSearchFilterOffset(t *testing.T) {
	f := &SearchFilter{Page: 3, Limit: 25}
	f.Normalize()

	assert.Equal(t, 50, f.Offset())
}

func TestParseSort(t *testing.T) {
	fields := ParseSort(`{"name":"ASC","email":"DESC"}`)

	assert.Equal(t, []SortField{
		{Field: "name", Direction: "ASC"},
		{Field: "email", Direction: "DESC"},
	}, fields, "field order must be preserved")
}

func TestParseSortMalformed(t *testing.T) {
	assert.Nil(t, ParseSort(""))
	assert.Nil(t, ParseSort("not json"))
	assert.Nil(t, ParseSort(`["name"]`))
	assert.Nil(t, ParseSort(`{"name":`))
}

func TestParseSortSkipsNonStringValues(t *testing.T) {
	fields := ParseSort(`{"name":1,"email":"ASC"}`)

	assert.Equal(t, []SortField{{Field: "email", Direction: "ASC"}}, fields)
}

func TestParseSortSkipsNestedValues(t *testing.T) {
	// Entries after a nested object or array must still be parsed.
	fields := ParseSort(`{"name":{"x":1},"email":"ASC"}`)
	assert.Equal(t, []SortField{{Field: "email", Direction: "ASC"}}, fields)

	fields = ParseSort(`{"name":[1,{"y":2}],"role":"DESC","email":"ASC"}`)
	assert.Equal(t, []SortField{
		{Field: "role", Direction: "DESC"},
		{Field: "email", Direction: "ASC"},
	}, fields)
}
