package socratic

import (
	"context"

	"github.com/ducktype/ducktype/internal/extract"
)

// RetryFunc re-issues a generation with a more explicit instruction.
type RetryFunc func(ctx context.Context) (string, error)

// EnsureNonEmpty returns extracted when it has items. Otherwise it runs retry at most once
// and re-extracts; if that is still empty, or retry is nil, it returns a copy of defaults.
func EnsureNonEmpty(ctx context.Context, extracted []string, retry RetryFunc, field string, defaults []string) []string {
	if len(extracted) > 0 {
		return extracted
	}
	if retry != nil {
		if raw, err := retry(ctx); err == nil {
			if items := extract.Extract(raw, field); len(items) > 0 {
				return items
			}
		}
	}
	return append([]string(nil), defaults...)
}
