package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/CZERTAINLY/leadseeker/internal/model"
)

const dataField = "data"

var (
	// ErrNoData is returned for frames without payload, e.g. heartbeats.
	ErrNoData       = errors.New("frame has no data")
	ErrMalformed    = errors.New("malformed payload")
	ErrUnknownEvent = errors.New("unknown event type")
)

// ParseFrame extracts the payload of a frame and converts it to a typed
// event. Any error means the frame must be skipped; it never means the
// stream is broken.
func ParseFrame(frame string) (Event, error) {
	payload, ok := framePayload(frame)
	if !ok {
		return nil, ErrNoData
	}
	return ParsePayload(payload)
}

// ParsePayload classifies a JSON object by its "type" field. Unknown
// fields are ignored.
func ParsePayload(payload string) (Event, error) {
	if !gjson.Valid(payload) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	discriminator := root.Get("type")
	if discriminator.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch typ := EventType(discriminator.Str); typ {
	case TypeInit:
		return parseInit(root)
	case TypeItemFound:
		return parseItemFound(root)
	case TypeProgress:
		return parseProgress(root)
	case TypeCompleted:
		return parseCompleted(root), nil
	case TypeFailed:
		return parseFailed(root), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}
}

// framePayload joins the data lines of a frame. Comments, other fields and
// lines without a colon are ignored.
func framePayload(frame string) (string, bool) {
	var lines []string
	for line := range strings.SplitSeq(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found || name != dataField {
			continue
		}
		lines = append(lines, strings.TrimPrefix(value, " "))
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func parseInit(root gjson.Result) (Event, error) {
	total, err := count(root, "total")
	if err != nil {
		return nil, err
	}
	phase, err := phase(root)
	if err != nil {
		return nil, err
	}
	return InitEvent{Total: total, Phase: phase}, nil
}

func parseItemFound(root gjson.Result) (Event, error) {
	item := root.Get("item")
	if !item.IsObject() {
		return nil, fmt.Errorf("%w: item-found without item", ErrMalformed)
	}
	id := item.Get("id")
	if id.Type != gjson.String && id.Type != gjson.Number || id.String() == "" {
		return nil, fmt.Errorf("%w: item without id", ErrMalformed)
	}
	ev := ItemFoundEvent{
		Item: model.ResultItem{
			ID:      id.String(),
			Payload: json.RawMessage(item.Raw),
		},
	}
	if p := root.Get("progress"); p.IsObject() {
		progress, err := counters(p)
		if err != nil {
			return nil, err
		}
		ev.Progress = &progress
	}
	var err error
	ev.Phase, err = phase(root)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func parseProgress(root gjson.Result) (Event, error) {
	progress, err := counters(root)
	if err != nil {
		return nil, err
	}
	phase, err := phase(root)
	if err != nil {
		return nil, err
	}
	return ProgressEvent{Progress: progress, Phase: phase}, nil
}

// parseCompleted never fails, the statistics are optional and a mistyped
// one drops the whole summary.
func parseCompleted(root gjson.Result) Event {
	summary, err := parseSummary(root)
	if err != nil {
		return CompletedEvent{}
	}
	return CompletedEvent{Summary: summary}
}

func parseSummary(root gjson.Result) (model.Summary, error) {
	total, err := count(root, "total")
	if err != nil {
		return model.Summary{}, err
	}
	found, err := count(root, "found")
	if err != nil {
		return model.Summary{}, err
	}
	var durationMs int64
	if d := root.Get("durationMs"); d.Exists() {
		if d.Type != gjson.Number || d.Num < 0 {
			return model.Summary{}, fmt.Errorf("%w: durationMs", ErrMalformed)
		}
		durationMs = d.Int()
	}
	return model.Summary{
		Total:      total,
		Found:      found,
		DurationMs: durationMs,
	}, nil
}

// parseFailed never fails, a failure without a message is still a failure.
func parseFailed(root gjson.Result) Event {
	for _, key := range []string{"error", "message"} {
		if msg := root.Get(key); msg.Type == gjson.String && msg.Str != "" {
			return FailedEvent{Message: msg.Str}
		}
	}
	return FailedEvent{Message: "search failed"}
}

func counters(obj gjson.Result) (model.SearchProgress, error) {
	var (
		p   model.SearchProgress
		err error
	)
	if p.Processed, err = count(obj, "processed"); err != nil {
		return p, err
	}
	if p.Total, err = count(obj, "total"); err != nil {
		return p, err
	}
	if p.Found, err = count(obj, "found"); err != nil {
		return p, err
	}
	return p, nil
}

// count reads a non-negative integer, a missing field is zero.
func count(obj gjson.Result, key string) (uint, error) {
	v := obj.Get(key)
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return 0, nil
	case v.Type != gjson.Number:
		return 0, fmt.Errorf("%w: %s is not a number", ErrMalformed, key)
	case v.Num < 0 || v.Num > math.MaxUint32 || v.Num != math.Trunc(v.Num):
		return 0, fmt.Errorf("%w: %s out of range", ErrMalformed, key)
	}
	return uint(v.Num), nil
}

func phase(obj gjson.Result) (model.SearchPhase, error) {
	v := obj.Get("phase")
	if !v.Exists() || v.Type == gjson.Null {
		return model.PhaseNone, nil
	}
	p := model.SearchPhase(v.String())
	if v.Type != gjson.String || !p.Valid() {
		return model.PhaseNone, fmt.Errorf("%w: unknown phase %q", ErrMalformed, v.Raw)
	}
	return p, nil
}
