package bucketstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

func quoteColumn(field string) string {
	return pq.QuoteIdentifier(field)
}

func quoteColumns(fields []string) string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = quoteColumn(f)
	}
	return strings.Join(out, ", ")
}

func joinPlaceholders(parts []string) string {
	return strings.Join(parts, ", ")
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), used to translate a driver error into UniqueAttribute.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}

// isSerializationFailure reports whether err is a Postgres serialization
// failure or deadlock (SQLSTATE 40001/40P01), which the transient error
// class treats as retryable.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// isConnectionFailure reports whether err indicates the connection itself
// dropped rather than the statement being rejected: a bad/closed
// database/sql connection, a network-level error from the driver, or a
// Postgres SQLSTATE class 08 (connection exception).
func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}
	return false
}

// classifyDBError maps a driver or query error onto the taxonomy's
// Transient/Internal split: a context deadline or cancellation, a
// serialization failure, or a dropped connection are conditions the
// caller may retry outside the pipeline; anything else executing an
// otherwise well-formed statement is Internal.
func classifyDBError(bucket string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errTransient(bucket, err)
	}
	if isSerializationFailure(err) || isConnectionFailure(err) {
		return errTransient(bucket, err)
	}
	return errInternal(bucket, err)
}

// describeArg renders one bound query argument for verbose statement
// logging. Array arguments are rendered as Postgres array literals, since
// their shape (not their content) is what's useful when debugging a
// filter or projection; scalar values are elided because a stored
// object's fields may carry arbitrary caller data.
func describeArg(v any) string {
	switch a := v.(type) {
	case pq.StringArray:
		return formatArrayLiteral([]string(a))
	case pq.Int64Array:
		elems := make([]string, len(a))
		for i, n := range a {
			elems[i] = strconv.FormatInt(n, 10)
		}
		return formatArrayLiteral(elems)
	case pq.BoolArray:
		elems := make([]string, len(a))
		for i, b := range a {
			elems[i] = strconv.FormatBool(b)
		}
		return formatArrayLiteral(elems)
	default:
		return "<scalar>"
	}
}

// logStatement emits one SQL statement and the shape of its bound
// arguments at debug level, gated by Options.Verbose.
func logStatement(log Logger, verbose bool, stmt string, args []any) {
	if !verbose || log == nil {
		return
	}
	descs := make([]string, len(args))
	for i, a := range args {
		descs[i] = describeArg(a)
	}
	log.WithField("args", descs).Debug(stmt)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
