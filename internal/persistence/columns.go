package persistence

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

// millis stores a timestamp as Unix milliseconds. The zero time maps to 0 in
// both directions.
type millis time.Time

func (m millis) Value() (driver.Value, error) {
	t := time.Time(m)
	if t.IsZero() {
		return int64(0), nil
	}

	return t.UnixMilli(), nil
}

func (m *millis) Scan(src any) error {
	v, ok := src.(int64)
	if !ok {
		return fmt.Errorf("millis: unsupported column type %T", src)
	}
	if v <= 0 {
		*m = millis{}
	} else {
		*m = millis(time.UnixMilli(v))
	}

	return nil
}

func optText(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func optPacketID(v uint32) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
