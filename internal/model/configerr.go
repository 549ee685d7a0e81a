package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	cue "cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// CueErrorDetail is one problem found in a config file, e.g.
// schedule[0].kind: invalid_enum.
type CueErrorDetail struct {
	Path    string // schedule[0].kind
	Code    string
	Message string
	Pos     CueErrorPosition
	Raw     string
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

func (c CueErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

// CueErrDetails converts an error returned by LoadConfig into a list of
// details, one per position in the config file. It returns nil for errors
// not coming from CUE.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}
	var (
		ret  []CueErrorDetail
		seen = make(map[CueErrorPosition]struct{})
	)
	for _, e := range cueerrors.Errors(err) {
		pos, ok := position(e)
		if !ok {
			continue
		}
		if _, dup := seen[pos]; dup {
			continue
		}
		seen[pos] = struct{}{}

		raw, args := e.Msg()
		raw = fmt.Sprintf(raw, args...)
		path := configPath(e.Path())
		code, msg := classify(raw, path)
		if hint := fieldHint(path); hint != "" {
			msg += ": " + hint
		}
		ret = append(ret, CueErrorDetail{
			Path:    path,
			Code:    code,
			Message: msg,
			Pos:     pos,
			Raw:     raw,
		})
	}
	return ret
}

var rules = []struct {
	rx     *regexp.Regexp
	code   string
	format string
}{
	{regexp.MustCompile(`(?i)not allowed|unknown field`), "unknown_field", "field %s is not allowed"},
	{regexp.MustCompile(`(?i)incomplete value`), "missing_required", "field %s is required"},
	{regexp.MustCompile(`(?i)empty disjunction|must be one of`), "invalid_enum", "field %s has invalid value"},
	{regexp.MustCompile(`(?i)invalid value .* out of bound|does not match`), "out_of_range", "field %s is out of range"},
	{regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`), "conflicting_values", "conflicting values for %s"},
}

func classify(raw, path string) (code, msg string) {
	for _, r := range rules {
		if r.rx.MatchString(raw) {
			return r.code, fmt.Sprintf(r.format, fieldName(path))
		}
	}
	return "validation_error", raw
}

// fieldHint tells what a well known field accepts.
func fieldHint(path string) string {
	switch fieldName(path) {
	case "kind":
		return "possible values (" + strings.Join(kindValues(), ",") + ")"
	case "url":
		return "must start with http:// or https://"
	case "timeout":
		return "a duration like 500ms, 30s or 2m"
	case "page_size":
		return "between 1 and 1000"
	default:
		return ""
	}
}

func kindValues() []string {
	var ret []string
	if op, args := kindSchema.Expr(); op == cue.OrOp {
		for _, a := range args {
			if s, err := a.String(); err == nil {
				ret = append(ret, s)
			}
		}
	}
	return ret
}

func position(err cueerrors.Error) (CueErrorPosition, bool) {
	for _, p := range cueerrors.Positions(err) {
		if p.Filename() == "" {
			continue
		}
		return CueErrorPosition{
			Filename: p.Filename(),
			Line:     p.Line(),
			Column:   p.Column(),
		}, true
	}
	return CueErrorPosition{}, false
}

// configPath renders a CUE path as written in the YAML file: the leading
// #Config is dropped and list indexes use brackets.
func configPath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	var sb strings.Builder
	for _, elem := range p {
		if _, err := strconv.Atoi(elem); err == nil {
			sb.WriteString("[" + elem + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(elem)
	}
	return sb.String()
}

func fieldName(path string) string {
	if i := strings.LastIndexAny(path, ".]"); i >= 0 {
		return path[i+1:]
	}
	return path
}
