package provider

import (
	"strings"
	"time"
)

const (
	instanceLayout       = "20060102T150405Z"
	allDayInstanceLayout = "20060102"
)

// SplitInstanceID decomposes a composite occurrence id of the form
// master_YYYYMMDDTHHMMSSZ (or master_YYYYMMDD for all-day series).
func SplitInstanceID(id string) (master string, occurrence time.Time, ok bool) {
	idx := strings.LastIndex(id, "_")
	if idx <= 0 || idx == len(id)-1 {
		return "", time.Time{}, false
	}
	suffix := id[idx+1:]
	for _, layout := range []string{instanceLayout, allDayInstanceLayout} {
		if len(suffix) != len(layout) {
			continue
		}
		t, err := time.Parse(layout, suffix)
		if err == nil {
			return id[:idx], t, true
		}
	}
	return "", time.Time{}, false
}
