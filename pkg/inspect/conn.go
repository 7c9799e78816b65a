package inspect

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-ini/ini"
	"github.com/go-sql-driver/mysql"
)

// ConnectionParams are the connection flags shared by every command.
type ConnectionParams struct {
	Host         string `name:"host" help:"Hostname" optional:"" default:"127.0.0.1:3306"`
	Username     string `name:"username" help:"User" optional:"" default:"stride"`
	Password     string `name:"password" help:"Password" optional:"" default:"stride"`
	DefaultsFile string `name:"defaults-file" help:"Load connection settings from the [client] section of a my.cnf style file" optional:""`
}

// applyDefaultsFile overrides the connection flags from the defaults
// file, when one is given. File values win over flag defaults because a
// defaults file is the more deliberate configuration.
func (p *ConnectionParams) applyDefaultsFile() error {
	if p.DefaultsFile == "" {
		return nil
	}
	creds, err := ini.Load(p.DefaultsFile)
	if err != nil {
		return fmt.Errorf("could not load defaults file: %w", err)
	}
	if !creds.HasSection("client") {
		return nil
	}
	client := creds.Section("client")
	if host := client.Key("host").String(); host != "" {
		p.Host = fmt.Sprintf("%s:%d", host, client.Key("port").MustInt(3306))
	}
	if user := client.Key("user").String(); user != "" {
		p.Username = user
	}
	if client.HasKey("password") {
		p.Password = client.Key("password").String()
	}
	return nil
}

// connect opens a connection pool from the resolved flags.
func (p *ConnectionParams) connect() (*sql.DB, error) {
	if err := p.applyDefaultsFile(); err != nil {
		return nil, err
	}
	if !strings.Contains(p.Host, ":") {
		p.Host = fmt.Sprintf("%s:%d", p.Host, 3306)
	}
	cfg := mysql.NewConfig()
	cfg.User = p.Username
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = p.Host
	cfg.ParseTime = true
	return sql.Open("mysql", cfg.FormatDSN())
}
