package viewmodel

import (
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
)

// SortKey names a sortable column.
type SortKey string

const (
	SortName           SortKey = "name"
	SortEmail          SortKey = "email"
	SortStatus         SortKey = "status"
	SortRevenue        SortKey = "revenue"
	SortClicks         SortKey = "clicks"
	SortConversionRate SortKey = "conversionRate"
	SortJoinDate       SortKey = "joinDate"
)

// Direction orders a sorted column.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Sort is the active column and direction.
type Sort struct {
	Key       SortKey
	Direction Direction
}

// DefaultSort lists the newest affiliates first.
var DefaultSort = Sort{Key: SortJoinDate, Direction: Descending}

var sortKeys = map[string]SortKey{
	"name":           SortName,
	"email":          SortEmail,
	"status":         SortStatus,
	"revenue":        SortRevenue,
	"clicks":         SortClicks,
	"conversionrate": SortConversionRate,
	"joindate":       SortJoinDate,
}

// ParseSortKey accepts column names case-insensitively.
func ParseSortKey(raw string) (SortKey, bool) {
	key, ok := sortKeys[strings.ToLower(strings.TrimSpace(raw))]
	return key, ok
}

// next returns the sort produced by selecting key: the active key flips, another key starts ascending.
func (s Sort) next(key SortKey) Sort {
	if s.Key == key && s.Direction == Ascending {
		return Sort{Key: key, Direction: Descending}
	}
	return Sort{Key: key, Direction: Ascending}
}

func compareRecords(key SortKey, a, b affiliates.Record) int {
	switch key {
	case SortName:
		return strings.Compare(a.Name, b.Name)
	case SortEmail:
		return strings.Compare(a.Email, b.Email)
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case SortRevenue:
		return compareFloat(a.Revenue, b.Revenue)
	case SortClicks:
		return compareInt(a.Clicks, b.Clicks)
	case SortConversionRate:
		return compareFloat(a.ConversionRate, b.ConversionRate)
	case SortJoinDate:
		return a.JoinDate.Compare(b.JoinDate)
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// sortRecords orders records in place. Ties keep their incoming order in both directions.
func sortRecords(records []affiliates.Record, order Sort) {
	sort.SliceStable(records, func(i, j int) bool {
		result := compareRecords(order.Key, records[i], records[j])
		if order.Direction == Descending {
			return result > 0
		}
		return result < 0
	})
}

func matchesSearch(record affiliates.Record, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(record.Name), term) ||
		strings.Contains(strings.ToLower(record.Email), term)
}
