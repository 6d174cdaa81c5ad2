package repository

import (
	"database/sql"
	"strings"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02 15:04:05.000000000"

func timeValue(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTimeValue(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return timeValue(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullInt64Value(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}
