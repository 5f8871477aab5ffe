package user

import (
	"encoding/json"
	"strings"
)

// Paging bounds for user search.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Sort directions accepted in search filters.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// sortableColumns whitelists the fields a client may order by. Anything else
// is dropped during normalization so sort input can never reach the SQL text.
var sortableColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"role":       "role",
	"status":     "status",
	"created_at": "created_at",
}

// SortField is one ordering clause, applied in the order the client sent it.
type SortField struct {
	Field     string
	Direction string
}

// SearchFilter carries the optional predicates, paging and ordering for a
// user search. Zero values mean "not set".
type SearchFilter struct {
	Email  string
	Name   string
	Role   Role
	Status *bool
	Page   int
	Limit  int
	Sort   []SortField
}

// Normalize applies the filter defaults and clamps: status defaults to
// active-only, page is floored to 1, limit below 1 falls back to the default
// page size and is capped at the maximum, and sort entries are reduced to the
// whitelisted columns and directions.
func (f *SearchFilter) Normalize() {
	if f.Status == nil {
		active := true
		f.Status = &active
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}

	valid := f.Sort[:0]
	for _, s := range f.Sort {
		col, ok := sortableColumns[strings.ToLower(s.Field)]
		if !ok {
			continue
		}
		dir := strings.ToUpper(s.Direction)
		if dir != SortAsc && dir != SortDesc {
			continue
		}
		valid = append(valid, SortField{Field: col, Direction: dir})
	}
	f.Sort = valid
}

// Offset returns the row offset implied by page and limit. Call Normalize
// first.
func (f *SearchFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ParseSort decodes the legacy sort query parameter, a JSON object mapping
// field names to "ASC"/"DESC" (e.g. {"name":"ASC","email":"DESC"}). Field
// order is preserved. Malformed input yields no ordering rather than an
// error, matching the store-default fallback.
func ParseSort(raw string) []SortField {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	var fields []SortField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil
		}
		switch val := valTok.(type) {
		case string:
			fields = append(fields, SortField{Field: key, Direction: val})
		case json.Delim:
			// Nested object or array: consume it fully so the entries
			// after it still parse.
			if err := skipNested(dec); err != nil {
				return nil
			}
		}
	}

	return fields
}

// skipNested consumes the remaining tokens of a nested value whose opening
// delimiter has already been read.
func skipNested(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
