package sqlstore

import "fmt"

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

func schema(driver string) ([]string, error) {
	var id, real string
	switch driver {
	case DriverSQLite:
		id, real = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	case DriverPostgres:
		id, real = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value %s NOT NULL
		)`, real),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS signals (
			id %s,
			ts TEXT NOT NULL,
			target_duration %s NOT NULL,
			weights TEXT NOT NULL
		)`, id, real),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS trades (
			id %s,
			ts TEXT NOT NULL,
			ticker TEXT NOT NULL,
			qty %[2]s NOT NULL,
			price %[2]s NOT NULL,
			side TEXT NOT NULL,
			trade_value %[2]s NOT NULL,
			status TEXT NOT NULL
		)`, id, real),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS logs (
			id %s,
			ts TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades (ts)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_level ON logs (level)`,
	}, nil
}
