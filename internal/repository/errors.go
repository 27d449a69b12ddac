package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

var (
	// ErrStorageUnavailable tags failures caused by an unreachable database or missing schema
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound row does not exist
	ErrNotFound = errors.New("not found")
)

// Postgres SQLSTATE codes treated as "storage unavailable"
var unavailableCodes = map[pq.ErrorCode]bool{
	"42P01": true, // undefined_table
	"3D000": true, // invalid_catalog_name
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

const uniqueViolation pq.ErrorCode = "23505"

// IsStorageUnavailable reports whether err means the store cannot be used at all,
// as opposed to a bad query
func IsStorageUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return unavailableCodes[pqErr.Code] || pqErr.Code.Class() == "08"
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}

// classify wraps err with ErrStorageUnavailable when it qualifies
func classify(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) || !IsStorageUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
