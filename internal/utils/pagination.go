// Package utils holds the query-parameter helpers shared by the list
// endpoints.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int, returning def when s is empty,
// padded or not a number.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ClampPage bounds page to >= 1 and pageSize to [1, maxSize]. A pageSize
// below 1 becomes def.
func ClampPage(page, pageSize, def, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = def
	}
	if maxSize > 0 && pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
