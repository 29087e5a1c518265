package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DriverDetail is what a database driver reported for the failing statement.
type DriverDetail struct {
	Driver     string
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
}

// ErrorDump is an error chain flattened for structured logging.
type ErrorDump struct {
	Message   string
	Code      Code
	Retryable bool
	Chain     []string
	DB        *DriverDetail
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{
		Message:   err.Error(),
		Retryable: IsRetryable(err),
		DB:        driverDetail(err),
	}
	if typed := As(err); typed != nil {
		d.Code = typed.code
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", e))
	}
	return d
}

// Fields returns the dump as logger fields. Driver fields appear only when a
// driver error sits in the chain.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error_code":  d.Code,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	if d.DB == nil {
		return fields
	}
	for key, value := range map[string]string{
		"db_driver":     d.DB.Driver,
		"db_code":       d.DB.Code,
		"db_constraint": d.DB.Constraint,
		"db_table":      d.DB.Table,
		"db_column":     d.DB.Column,
		"db_detail":     d.DB.Detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func driverDetail(err error) *DriverDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DriverDetail{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DriverDetail{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &DriverDetail{Driver: "sqlite3", Code: liteErr.ExtendedCode.Error(), Detail: liteErr.Error()}
	}
	return nil
}
