package bucketstore

import (
	"github.com/sirupsen/logrus"
)

// Logger is the structured logging handle threaded through requests and
// triggers. It is a thin alias over *logrus.Entry so callers can use the
// full logrus field API without this package wrapping every method.
type Logger = *logrus.Entry

func newLogger(base *logrus.Logger) Logger {
	if base == nil {
		base = logrus.New()
		base.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(base)
}

func withOp(log Logger, op, bucket string) Logger {
	return log.WithFields(logrus.Fields{"op": op, "bucket": bucket})
}

// logResult records the outcome of one pipeline run at the level the
// error-handling contract calls for: Warn for the two conditions a
// well-behaved client triggers routinely as part of normal operation
// (an etag race, a missing key), Error for everything else.
func logResult(log Logger, err error) {
	if log == nil || err == nil {
		return
	}
	kind := ErrorKind(err)
	entry := log.WithField("kind", kind.String())
	switch kind {
	case KindEtagConflict, KindObjectNotFound:
		entry.Warn(err.Error())
	default:
		entry.Error(err.Error())
	}
}
