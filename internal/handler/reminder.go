package handler

import (
	"strings"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// datetime-local入力の形式。秒はブラウザによって付与される。
var localReminderLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// parseReminder はリマインダー時刻の入力を解析する。
// 空文字列はリマインダーなし（nil）を表す。
// RFC 3339形式はそのオフセットで、datetime-local形式はlocのタイムゾーンで解釈する。
func parseReminder(value string, loc *time.Location) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	for _, layout := range localReminderLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return &t, nil
		}
	}
	return nil, model.NewInvalidReminderError(value)
}
