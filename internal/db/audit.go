package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"kartoteka/internal/export"
)

// AuditTables are exported in audit workbooks, one sheet each.
var AuditTables = []string{
	"services",
	"workers",
	"worker_weekly_slots",
	"worker_services",
	"day_overrides",
	"reservations",
	"expenses",
}

// TableData returns the columns and rows of an audit table for one tenant.
func (db *DB) TableData(ctx context.Context, table string, tenantID int64) (columns []string, data [][]interface{}, err error) {
	valid := false
	for _, t := range AuditTables {
		if t == table {
			valid = true
			break
		}
	}
	if !valid {
		return nil, nil, fmt.Errorf("invalid table name: %s", table)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE tenant_id = ?", table), tenantID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	if columns, err = rows.Columns(); err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			values[i] = cellValue(v)
		}
		data = append(data, values)
	}
	return columns, data, rows.Err()
}

// ExportAudit writes every audit table of the tenant as an xlsx workbook.
func (db *DB) ExportAudit(ctx context.Context, tenantID int64, out io.Writer) error {
	book := export.NewWorkbook()
	defer book.Close()

	for _, table := range AuditTables {
		columns, data, err := db.TableData(ctx, table, tenantID)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		if err := book.AddSheet(table); err != nil {
			return err
		}
		if err := book.WriteHeader(columns); err != nil {
			return err
		}
		for _, row := range data {
			if err := book.WriteRow(row); err != nil {
				return err
			}
		}
	}
	return book.Save(out)
}

func cellValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case sql.RawBytes:
		return string(x)
	default:
		return x
	}
}
