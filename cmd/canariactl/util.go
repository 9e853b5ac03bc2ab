package main

import "time"

func valueOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
