package postgres

import (
	"fmt"
	"time"
)

// nullTime converts a possibly-zero time.Time into a value suitable for a
// nullable TIMESTAMPTZ parameter: zero becomes SQL NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// nullTimeDest adapts *time.Time to database/sql.Scanner so pgx can scan a
// nullable TIMESTAMPTZ column (NULL becomes the zero time.Time).
type nullTimeDest struct {
	dst *time.Time
}

func (n nullTimeDest) Scan(src any) error {
	if src == nil {
		*n.dst = time.Time{}
		return nil
	}
	t, ok := src.(time.Time)
	if !ok {
		return fmt.Errorf("postgres: scan time: unexpected source type %T", src)
	}
	*n.dst = t
	return nil
}

// scanTime returns a Scan destination for a nullable TIMESTAMPTZ column.
func scanTime(dst *time.Time) any {
	return nullTimeDest{dst: dst}
}
