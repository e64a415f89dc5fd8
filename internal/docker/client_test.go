package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(WithHost("tcp://"+strings.TrimPrefix(srv.URL, "http://")), WithVersion("1.45"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListContainers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/containers/json"), r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("all"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"Id": "a1", "Names": []string{"/db1"}, "Image": "postgres:16", "State": "running"},
			{"Id": "b2", "Names": []string{"/db2"}, "Image": "mariadb:11", "State": "exited"},
			{"Id": "c3", "Names": []string{}, "Image": "redis:7", "State": "paused"},
		})
	})

	list, err := c.ListContainers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Container{
		{ID: "a1", Name: "db1", Image: "postgres:16", Status: StatusRunning},
		{ID: "b2", Name: "db2", Image: "mariadb:11", Status: StatusExited},
		{ID: "c3", Name: "", Image: "redis:7", Status: StatusStopped},
	}, list)
}

func TestEnv(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/containers/a1/json"), r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Id": "a1",
			"Config": map[string]any{
				"Env": []string{"POSTGRES_USER=app", "PATH=/usr/bin", "EMPTY="},
			},
		})
	})

	env, err := c.Env(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "app", env["POSTGRES_USER"])
	assert.Equal(t, "/usr/bin", env["PATH"])
	v, ok := env["EMPTY"]
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestListContainersError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	_, err := c.ListContainers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list containers")
}

func TestMapStatus(t *testing.T) {
	cases := map[string]Status{
		"running":    StatusRunning,
		"RUNNING":    StatusRunning,
		"exited":     StatusExited,
		"dead":       StatusExited,
		"created":    StatusStopped,
		"paused":     StatusStopped,
		"restarting": StatusOther,
		"":           StatusOther,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), in)
	}
}

func TestParseEnv(t *testing.T) {
	env := ParseEnv([]string{"A=1", "B=x=y", "=bad", "NOEQ", "A=2"})
	assert.Equal(t, map[string]string{"A": "2", "B": "x=y"}, env)
}

func TestTailBufferKeepsEnd(t *testing.T) {
	tb := &tailBuffer{limit: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}

// execDaemon answers the exec create, start and inspect endpoints. The start
// stream is multiplexed the way the daemon sends it for non-TTY execs.
type execDaemon struct {
	stdout, stderr string
	exitCode       int
	// hold keeps the stream open after writing until it is closed.
	hold chan struct{}

	mu       sync.Mutex
	created  map[string]any
	inspects int
}

func (d *execDaemon) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/containers/a1/exec"):
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			d.mu.Lock()
			d.created = body
			d.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"Id": "e1"})

		case strings.HasSuffix(r.URL.Path, "/exec/e1/start"):
			conn, buf, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			defer conn.Close()
			_, _ = buf.WriteString("HTTP/1.1 101 UPGRADED\r\n" +
				"Content-Type: application/vnd.docker.multiplexed-stream\r\n" +
				"Connection: Upgrade\r\nUpgrade: tcp\r\n\r\n")
			if d.stdout != "" {
				_, _ = stdcopy.NewStdWriter(buf, stdcopy.Stdout).Write([]byte(d.stdout))
			}
			if d.stderr != "" {
				_, _ = stdcopy.NewStdWriter(buf, stdcopy.Stderr).Write([]byte(d.stderr))
			}
			_ = buf.Flush()
			if d.hold != nil {
				<-d.hold
			}

		case strings.HasSuffix(r.URL.Path, "/exec/e1/json"):
			d.mu.Lock()
			d.inspects++
			running := d.inspects == 1
			d.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ID":       "e1",
				"Running":  running,
				"ExitCode": d.exitCode,
			})

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestExecStreamsStdout(t *testing.T) {
	d := &execDaemon{stdout: "CREATE ROLE app;\n", stderr: "notice: dumping\n"}
	c := newTestClient(t, d.handler(t))

	var out bytes.Buffer
	code, err := c.Exec(context.Background(), "a1", ExecRequest{
		Cmd: []string{"pg_dumpall", "--username=app"},
		Env: []string{"PGPASSWORD=secret"},
	}, &out)
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "CREATE ROLE app;\n", out.String())

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []any{"pg_dumpall", "--username=app"}, d.created["Cmd"])
	assert.Equal(t, []any{"PGPASSWORD=secret"}, d.created["Env"])
	assert.Equal(t, true, d.created["AttachStdout"])
	// the first inspect still reports the process as running
	assert.Equal(t, 2, d.inspects)
}

func TestExecNonZeroExit(t *testing.T) {
	d := &execDaemon{stdout: "partial", stderr: "pg_dumpall: error: role \"x\" does not exist\n", exitCode: 1}
	c := newTestClient(t, d.handler(t))

	var out bytes.Buffer
	code, err := c.Exec(context.Background(), "a1", ExecRequest{Cmd: []string{"pg_dumpall"}}, &out)
	assert.Equal(t, 1, code)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, `pg_dumpall: error: role "x" does not exist`, exitErr.Stderr)
	assert.Equal(t, "partial", out.String())
}

func TestExecCancelClosesStream(t *testing.T) {
	d := &execDaemon{stdout: "partial", hold: make(chan struct{})}
	c := newTestClient(t, d.handler(t))
	t.Cleanup(func() { close(d.hold) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.Exec(ctx, "a1", ExecRequest{Cmd: []string{"pg_dumpall"}}, &bytes.Buffer{})
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrExec)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("exec did not return after cancellation")
	}
}
