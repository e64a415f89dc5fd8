package database

import (
	"fmt"

	"github.com/kebairia/dockdump/internal/docker"
)

const (
	EngineMariaDB = "mariadb"
	EngineMySQL   = "mysql"
)

// mysqlDumpArgs are shared by mysqldump and mariadb-dump.
var mysqlDumpArgs = []string{
	"--user=root",
	"--all-databases",
	"--single-transaction",
	"--routines",
	"--events",
}

// MariaDB dumps every database with mariadb-dump as root.
type MariaDB struct{}

func (MariaDB) Engine() string { return EngineMariaDB }
func (MariaDB) Binary() string { return "mariadb-dump" }

// Command requires MYSQL_ROOT_PASSWORD or, failing that, MARIADB_ROOT_PASSWORD.
func (m MariaDB) Command(env map[string]string) (docker.ExecRequest, error) {
	pass, ok := lookupFirst(env, "MYSQL_ROOT_PASSWORD", "MARIADB_ROOT_PASSWORD")
	if !ok {
		return docker.ExecRequest{}, fmt.Errorf(
			"%w: neither MYSQL_ROOT_PASSWORD nor MARIADB_ROOT_PASSWORD is set", ErrCredentials)
	}
	return mysqlRequest(m.Binary(), pass), nil
}

// MySQL dumps every database with mysqldump as root.
type MySQL struct{}

func (MySQL) Engine() string { return EngineMySQL }
func (MySQL) Binary() string { return "mysqldump" }

// Command requires MYSQL_ROOT_PASSWORD.
func (m MySQL) Command(env map[string]string) (docker.ExecRequest, error) {
	pass, ok := lookupFirst(env, "MYSQL_ROOT_PASSWORD")
	if !ok {
		return docker.ExecRequest{}, fmt.Errorf("%w: MYSQL_ROOT_PASSWORD is not set", ErrCredentials)
	}
	return mysqlRequest(m.Binary(), pass), nil
}

// mysqlRequest passes the password through MYSQL_PWD so it never shows up in argv.
func mysqlRequest(binary, password string) docker.ExecRequest {
	cmd := append([]string{binary}, mysqlDumpArgs...)
	return docker.ExecRequest{
		Cmd: cmd,
		Env: []string{"MYSQL_PWD=" + password},
	}
}

// lookupFirst returns the first non-empty value among keys.
func lookupFirst(env map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v := env[k]; v != "" {
			return v, true
		}
	}
	return "", false
}
