package media

import (
	"github.com/dustin/go-humanize"

	"github.com/frudas24/frameit/internal/errs"
)

// Limits caps upload sizes per kind. Zero disables a cap.
type Limits struct {
	MaxVideoBytes int64
	MaxImageBytes int64
}

// DefaultLimits returns the stock caps: 25 MB video, 40 MB image.
func DefaultLimits() Limits {
	return Limits{
		MaxVideoBytes: 25 * 1024 * 1024,
		MaxImageBytes: 40 * 1024 * 1024,
	}
}

// Max returns the largest cap, used to bound request bodies.
func (l Limits) Max() int64 {
	return max(l.MaxVideoBytes, l.MaxImageBytes)
}

// Check rejects size when it exceeds the cap for kind.
func (l Limits) Check(kind Kind, size int64) error {
	limit := l.MaxImageBytes
	if kind == KindVideo {
		limit = l.MaxVideoBytes
	}
	if limit <= 0 || size <= limit {
		return nil
	}
	return errs.New(errs.CodeMediaTooLarge, "That %s is %s. The limit is %s.",
		kind, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}
