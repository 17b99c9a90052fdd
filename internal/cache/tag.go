package cache

import (
	"strings"

	"github.com/n9te9/federation-core/internal/selection"
	"github.com/n9te9/federation-core/internal/value"
)

// RenderCacheTag interpolates a @cacheTag(format: "…") template by replacing
// every "{expr}" placeholder with the result of evaluating expr as a
// selection-evaluator path against scope. scope is bound as $ so expr is a bare path such as
// "id" or "args.id".
func RenderCacheTag(format string, scope value.Value) (string, []selection.Error) {
	var sb strings.Builder
	var errs []selection.Error

	rest := format
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		expr := rest[start+1 : end]

		src := expr
		if !strings.HasPrefix(src, "$") && !strings.HasPrefix(src, "@") {
			src = "$." + src
		}
		prog, err := selection.Parse(src)
		if err != nil {
			errs = append(errs, selection.Error{Message: "cacheTag: " + err.Error()})
			rest = rest[end+1:]
			continue
		}
		v, applyErrs := selection.Apply(prog, scope, nil)
		errs = append(errs, applyErrs...)
		sb.WriteString(stringify(v))

		rest = rest[end+1:]
	}

	return sb.String(), errs
}

func stringify(v value.Value) string {
	if s, ok := v.String(); ok {
		return s
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return strings.Trim(string(b), `"`)
}
