package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/config"
	"github.com/JakeFAU/bulkgen/internal/job"
	"github.com/JakeFAU/bulkgen/internal/server"
)

const fastConfig = `
job:
  poll_interval: 10ms
synth:
  latency: 0s
  activation_failure_rate: 0
`

// useTestApp swaps the application factory for one with a private metrics
// registry and a silent logger.
func useTestApp(t *testing.T) {
	t.Helper()
	orig := newApp
	newApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
		return server.Build(ctx, cfg,
			server.WithRegisterer(prometheus.NewRegistry()),
			server.WithLogger(zap.NewNop()),
		)
	}
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fastConfig), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "none.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandCompletesJob(t *testing.T) {
	useTestApp(t)

	out, err := execute(t, "run", "--count", "6", "--threads", "2", "--region", "ghost", "--poll", "5ms")
	require.NoError(t, err)
	require.Contains(t, out, "started")
	require.Contains(t, out, "(GHOST MODE)")
	require.Contains(t, out, "✅ Generation completed!")
	require.Contains(t, out, `"is_running": false`)
	require.Contains(t, out, `"target": 6`)
}

func TestRunCommandRejectsInvalidFlags(t *testing.T) {
	useTestApp(t)

	_, err := execute(t, "run", "--threads", "0")
	require.Error(t, err)

	var cfgErr *job.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "thread_count", cfgErr.Field)
}

func TestRunCommandRejectsBadPoll(t *testing.T) {
	useTestApp(t)

	_, err := execute(t, "run", "--poll", "0s")
	require.ErrorContains(t, err, "poll interval")
}

func TestRootFailsOnMissingConfig(t *testing.T) {
	useTestApp(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "read config")
}

func TestRunFlagsApplyOnlyChanged(t *testing.T) {
	t.Parallel()

	flags := &runFlags{region: "br", count: 7, threads: 3, autoActivation: false}
	changed := map[string]bool{"region": true, "count": true, "auto-activation": true}

	got := flags.apply(func(name string) bool { return changed[name] }, job.DefaultConfig())
	want := job.DefaultConfig()
	want.Region = "br"
	want.AccountCount = 7
	want.AutoActivation = false
	require.Equal(t, want, got)
}

func TestAppFromEmptyContext(t *testing.T) {
	t.Parallel()

	_, err := appFrom(context.Background())
	require.Error(t, err)
}
