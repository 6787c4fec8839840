// Copyright (c) 2022 Netskope, Inc. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ga-tools/poliops-transfer/internal/config"
)

const (
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"

	dbPoolSize = 2
	dbConnLife = 30 * time.Minute
	dbTimeout  = 5
)

var ErrBadHostname = fmt.Errorf("hostname is required")

type SQLClient struct {
	db      *sql.DB
	timeout time.Duration
	name    string
}

func (sc *SQLClient) Name() string {
	if sc == nil {
		return ""
	}
	return sc.name
}

func (sc *SQLClient) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), sc.timeout)
}

func (sc *SQLClient) Close() error {
	if sc.db != nil {
		err := sc.db.Close()
		sc.db = nil
		return err
	}
	return nil
}

func (sc *SQLClient) GetDB() *sql.DB {
	return sc.db
}

func (sc *SQLClient) Ping() error {
	ctx, cancel := sc.context()
	defer cancel()
	return sc.db.PingContext(ctx)
}

// NewSourceClient connects to the Great Plains SQL Server.
func NewSourceClient(d config.Database, timeout int) (*SQLClient, error) {
	if d.Host == "" {
		return nil, ErrBadHostname
	}
	return newSQLClient(DriverSQLServer, d.SQLServerURL(), timeout, "great-plains")
}

// NewAuditClient connects to the MySQL/MariaDB database holding the transfer audit table.
func NewAuditClient(d config.Database, timeout int) (*SQLClient, error) {
	if d.Host == "" {
		return nil, ErrBadHostname
	}
	return newSQLClient(DriverMySQL, MySQLDSN(d), timeout, "audit")
}

// MySQLDSN returns the go-sql-driver/mysql DSN for d.
func MySQLDSN(d config.Database) string {
	dsn := fmt.Sprintf("tcp(%s)/%s?parseTime=true", d.HostPort(), d.Name)
	if d.User != "" {
		user := d.User
		if d.Password != "" {
			user += ":" + d.Password
		}
		dsn = user + "@" + dsn
	}
	return dsn
}

func newSQLClient(driver, dsn string, timeout int, name string) (*SQLClient, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(dbConnLife)
	db.SetMaxOpenConns(dbPoolSize)
	db.SetMaxIdleConns(dbPoolSize)

	if timeout < 1 {
		timeout = dbTimeout
	}

	sc := &SQLClient{
		db:      db,
		timeout: time.Duration(timeout) * time.Second,
		name:    name,
	}

	if err = sc.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sc, nil
}
