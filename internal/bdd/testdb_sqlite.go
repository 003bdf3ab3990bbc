package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/testutil/cucumber"
	"gorm.io/gorm"
)

// SQLiteTestDB implements cucumber.TestDB on a second connection pool to the
// server's database file.
type SQLiteTestDB struct {
	DB *gorm.DB
}

var _ cucumber.TestDB = (*SQLiteTestDB)(nil)

func (d *SQLiteTestDB) Kind() string { return config.DBKindSQLite }

func (d *SQLiteTestDB) ClearAll(ctx context.Context) error {
	if err := d.DB.WithContext(ctx).Exec("DELETE FROM conversations").Error; err != nil {
		return fmt.Errorf("cleanup: failed to delete from conversations: %w", err)
	}
	return nil
}

func (d *SQLiteTestDB) ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := d.DB.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("SQL query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			row[name] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
