package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// DriverName is the database/sql driver vec0 databases are opened with.
const DriverName = "sqlite"

// Open opens a SQLite database with the vec_* scalar functions and the
// vec_each table-valued function available on every connection. Virtual
// table modules are registered separately, see vec.RegisterAs.
//
// For file-based databases, pass a path like "./db.sqlite". For in-memory
// databases, pass ":memory:".
func Open(dsn string) (*sql.DB, error) {
	if err := RegisterVectorFunctions(nil); err != nil {
		return nil, err
	}
	base, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("vec0: open %s: %w", dsn, err)
	}
	drv := base.Driver()
	_ = base.Close()
	return sql.OpenDB(&connector{dsn: dsn, driver: drv}), nil
}

// connector opens driver connections and declares vec_each on each of them.
// The driver only resolves table-valued functions through a declared table.
type connector struct {
	dsn    string
	driver driver.Driver
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	execer, ok := conn.(driver.ExecerContext)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("vec0: open %s: driver connection cannot execute statements", c.dsn)
	}
	if _, err := execer.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS temp.`+EachName+` USING `+EachName, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("vec0: open %s: declare %s: %w", c.dsn, EachName, err)
	}
	return conn, nil
}

func (c *connector) Driver() driver.Driver { return c.driver }
