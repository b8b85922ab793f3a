package usage

import "time"

// Counter windows are calendar-aligned in UTC; a key expires exactly when its
// window closes, so a fresh window starts implicitly at zero.

func dayKey(ownerID string, t time.Time) string {
	return "usage:d:" + ownerID + ":" + t.UTC().Format("20060102")
}

func monthKey(ownerID string, t time.Time) string {
	return "usage:m:" + ownerID + ":" + t.UTC().Format("200601")
}

func endOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func endOfUTCMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
