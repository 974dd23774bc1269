package utils

import (
	"errors"
	"math"
	"os"
	"strconv"
)

var BackupDir string

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// ParsePage reads a 1-indexed page number, clamping anything invalid to 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) && page > 0 {
		return page
	}
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Skip converts a 1-indexed page into a row offset. Offsets past the
// largest int saturate, so absurd pages come back empty.
func Skip(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	if pageSize > 0 && page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}
