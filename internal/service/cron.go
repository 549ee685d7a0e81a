package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron parses a cron expression that have 5 fields
// return error if it fails
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return errors.New("empty cron expression")
	}

	// Macros / @every handled by ParseStandard
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}

	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser5.Parse(e)
	return err
}

var isoDurationRx = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses the time part of ISO 8601 durations, e.g. PT6H,
// P1DT12H or PT0.5S. Years and months are not supported, a day is 24h.
func ParseISODuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}
	m := isoDurationRx.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}

	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, seg := range m[1:] {
		if seg == "" {
			continue
		}
		val, err := strconv.ParseFloat(seg, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", seg)
		}
		add := val * float64(units[i])
		if add > float64(math.MaxInt64)-float64(total) {
			return 0, errors.New("duration overflow")
		}
		total += time.Duration(add)
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return total, nil
}
