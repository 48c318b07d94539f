package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/internal/config"
	"github.com/unkn0wn-root/cascheck/provider/bolt"
	"github.com/unkn0wn-root/cascheck/provider/ristretto"
)

// writeConfig points both endpoints at mr and records into a bolt file.
func writeConfig(t *testing.T, mr *miniredis.Miniredis) (cfgPath, dbPath string) {
	t.Helper()
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "results.db")
	body := fmt.Sprintf(`
primary: {host: %[1]s, port: %[2]d, tls: {enabled: false}}
replica: {host: %[1]s, port: %[2]d, tls: {enabled: false}}
settle: {mode: none}
report: {store: bolt, path: %[3]s}
logging: {backend: logrus, level: error}
`, host, p, dbPath)
	cfgPath = filepath.Join(dir, "cascheck.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, dbPath
}

func TestRunThenReport(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath, _ := writeConfig(t, mr)
	ctx := context.Background()

	var out bytes.Buffer
	err := run(ctx, cfgPath, runFlags{only: []string{"ping", "string", "counter", "hash"}, runID: "r-1"}, &out)
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), "4 scenarios, 4 pass")
	assert.Empty(t, mr.Keys(), "namespace cleaned up")

	out.Reset()
	require.NoError(t, printReport(ctx, cfgPath, "r-1", &out))
	assert.Contains(t, out.String(), "counter")
	assert.Contains(t, out.String(), "4 pass")
}

func TestRunUnreachableIsExitOne(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath, _ := writeConfig(t, mr)
	mr.Close()

	err := run(context.Background(), cfgPath, runFlags{only: []string{"ping"}}, &bytes.Buffer{})
	require.Error(t, err)
	var ce *cascheck.ConnectivityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cascheck.RolePrimary, ce.Role)
	assert.Equal(t, 1, exitCode(err))
}

func TestRunRejectsUnknownScenario(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath, _ := writeConfig(t, mr)
	err := run(context.Background(), cfgPath, runFlags{only: []string{"nope"}}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errNotPassed))
	assert.Equal(t, 1, exitCode(fmt.Errorf("run: %w", errNotPassed)))
	assert.Equal(t, 2, exitCode(errors.New("invalid configuration")))
	assert.Equal(t, 1, exitCode(context.Canceled), "interrupted run did not pass")
	assert.Equal(t, 1, exitCode(fmt.Errorf("run: %w", context.Canceled)))
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default().Report

	p, err := newProvider(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ristretto.Provider{}, p)
	_ = p.Close(context.Background())

	cfg.Store = "none"
	p, err = newProvider(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	cfg.Store = "redis"
	_, err = newProvider(cfg, nil)
	assert.Error(t, err)

	cfg.Store, cfg.Path = "bolt", filepath.Join(t.TempDir(), "r.db")
	p, err = newProvider(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &bolt.Provider{}, p)
	_ = p.Close(context.Background())
}

func TestReportNeedsDurableStore(t *testing.T) {
	t.Setenv("CASCHECK_PRIMARY_HOST", "p")
	t.Setenv("CASCHECK_REPLICA_HOST", "r")
	err := printReport(context.Background(), "", "r-1", &bytes.Buffer{})
	assert.ErrorContains(t, err, "ristretto")
}

func TestListPrintsCatalogue(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, list(&out))
	assert.Contains(t, out.String(), "hyperloglog")
	assert.Contains(t, out.String(), "contention")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "list", "report"}, names)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"list"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "pubsub")
}

func TestRunInterruptedIsExitOne(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath, _ := writeConfig(t, mr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, cfgPath, runFlags{only: []string{"ping"}}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}
