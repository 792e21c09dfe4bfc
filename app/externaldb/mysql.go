package externaldb

import (
	"context"
	"database/sql"
	"net"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
)

const defaultMySQLPort = "3306"

// MySQLDialer dials the guild's FiveM database. timeout also bounds the
// driver's own dial, read and write calls.
func MySQLDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, creds guild.Credentials) (*bun.DB, error) {
		cfg := mysql.NewConfig()
		cfg.User = creds.Username
		cfg.Passwd = creds.Password
		cfg.Net = "tcp"
		cfg.Addr = withDefaultPort(creds.Host)
		cfg.DBName = creds.DatabaseName
		cfg.Timeout = timeout
		cfg.ReadTimeout = timeout
		cfg.WriteTimeout = timeout
		cfg.ParseTime = true

		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, err
		}
		sqldb := sql.OpenDB(connector)
		sqldb.SetMaxOpenConns(4)
		sqldb.SetConnMaxIdleTime(5 * time.Minute)

		db := bun.NewDB(sqldb, mysqldialect.New())
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, defaultMySQLPort)
}
