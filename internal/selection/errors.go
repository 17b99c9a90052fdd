package selection

import (
	"strconv"
	"strings"

	"github.com/n9te9/federation-core/internal/value"
)

// Error carries a selection-evaluation diagnostic: a message, the value path
// at which it occurred, and (when available) the source range in the
// program text that produced it.
type Error struct {
	Message string
	Path    value.Path
	Range   *SourceRange
}

// errorSink accumulates Errors, passed explicitly through the recursion
// and
// deduplicated by the full (message, path, range) triple to
// bound repetition.
type errorSink struct {
	errs []Error
	seen map[string]struct{}
}

func newErrorSink() *errorSink {
	return &errorSink{seen: make(map[string]struct{})}
}

func (s *errorSink) add(e Error) {
	key := e.Message + "\x00" + e.Path.String()
	if e.Range != nil {
		key += "\x00" + rangeKey(*e.Range)
	}
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.errs = append(s.errs, e)
}

func rangeKey(r SourceRange) string {
	return strconv.Itoa(r.Start) + ":" + strconv.Itoa(r.End)
}

// rewritePrefix rewrites the message prefix of every error recorded since
// index from (inclusive) that starts with oldPrefix, replacing it with
// newPrefix. Used by the `?` optional-chain step.
func (s *errorSink) rewritePrefix(from int, oldPrefix, newPrefix string) {
	for i := from; i < len(s.errs); i++ {
		if strings.HasPrefix(s.errs[i].Message, oldPrefix) {
			s.errs[i].Message = newPrefix + strings.TrimPrefix(s.errs[i].Message, oldPrefix)
		}
	}
}

func (s *errorSink) list() []Error {
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs
}
