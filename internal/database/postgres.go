package database

import (
	"fmt"

	"github.com/kebairia/dockdump/internal/docker"
)

const EnginePostgres = "postgres"

// Postgres dumps the whole cluster with pg_dumpall as the POSTGRES_USER role.
type Postgres struct{}

func (Postgres) Engine() string { return EnginePostgres }
func (Postgres) Binary() string { return "pg_dumpall" }

// Command requires POSTGRES_USER. POSTGRES_PASSWORD, when present, is passed
// as PGPASSWORD for non-interactive auth.
func (p Postgres) Command(env map[string]string) (docker.ExecRequest, error) {
	user, ok := lookupFirst(env, "POSTGRES_USER")
	if !ok {
		return docker.ExecRequest{}, fmt.Errorf("%w: POSTGRES_USER is not set", ErrCredentials)
	}
	req := docker.ExecRequest{
		Cmd: []string{p.Binary(), "--username=" + user},
	}
	if pass, ok := lookupFirst(env, "POSTGRES_PASSWORD"); ok {
		req.Env = []string{"PGPASSWORD=" + pass}
	}
	return req, nil
}
