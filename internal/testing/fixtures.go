package testing

import (
	"database/sql"
	"testing"
	"time"
)

// Fixtures write rows with plain SQL so that any module package can use them
// from its tests without an import cycle.

// SeedSecurity inserts a security with a price. A price of 0 stores NULL
// (no quote yet).
func SeedSecurity(t *testing.T, db *sql.DB, id int64, symbol string, price float64) {
	t.Helper()

	var p interface{}
	if price != 0 {
		p = price
	}
	_, err := db.Exec(
		"INSERT INTO securities (id, symbol, name, sector, current_price, updated_at) VALUES (?, ?, ?, '', ?, ?)",
		id, symbol, symbol+" Corp", p, time.Now().Unix(),
	)
	if err != nil {
		t.Fatalf("Failed to seed security %s: %v", symbol, err)
	}
}

// SetSecurityPrice overwrites a security's price, bypassing feed validation.
func SetSecurityPrice(t *testing.T, db *sql.DB, id int64, price float64) {
	t.Helper()
	if _, err := db.Exec("UPDATE securities SET current_price = ? WHERE id = ?", price, id); err != nil {
		t.Fatalf("Failed to set price of security %d: %v", id, err)
	}
}

// SeedStrategy inserts a strategy row and returns its id. allocations is the
// raw portfolio_allocations JSON.
func SeedStrategy(t *testing.T, db *sql.DB, userID int64, totalFunds, remainingCash float64, allocations string) int64 {
	t.Helper()

	result, err := db.Exec(
		`INSERT INTO strategies (user_id, name, total_funds, remaining_cash, portfolio_allocations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, "Test Strategy", totalFunds, remainingCash, allocations, time.Now().Unix(),
	)
	if err != nil {
		t.Fatalf("Failed to seed strategy: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read strategy id: %v", err)
	}
	return id
}

// SeedHolding inserts a holding for a strategy and returns its id.
// current_value is quantity × averagePrice.
func SeedHolding(t *testing.T, db *sql.DB, strategyID, securityID int64, quantity int64, averagePrice float64) int64 {
	t.Helper()

	result, err := db.Exec(
		`INSERT INTO holdings (user_id, strategy_id, portfolio_id, security_id, quantity, average_price, current_value, purchase_date, notes)
		 VALUES (1, ?, NULL, ?, ?, ?, ?, ?, '')`,
		strategyID, securityID, quantity, averagePrice, float64(quantity)*averagePrice, time.Now().Unix(),
	)
	if err != nil {
		t.Fatalf("Failed to seed holding: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read holding id: %v", err)
	}
	return id
}

// CountRows returns the number of rows in table matching the optional where clause.
func CountRows(t *testing.T, db *sql.DB, table, where string, args ...interface{}) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var count int
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return count
}
