package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatmesh/cfgsync/internal/config"
)

// testApp returns an App with captured output, reading configuration from
// the environment like the real binary does.
func testApp() (*App, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	app := &App{
		Stdout:     stdout,
		Stderr:     stderr,
		LoadConfig: config.Load,
	}
	return app, stdout, stderr
}

// setupEnv points the app at temp project and mirror directories and a
// local bare upstream with the canonical branch.
func setupEnv(t *testing.T) (projectDir string) {
	t.Helper()

	projectDir = t.TempDir()
	upstream := filepath.Join(t.TempDir(), "upstream.git")
	repo, err := gogit.PlainInit(upstream, true)
	require.NoError(t, err)
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, repo.Storer.SetReference(head))

	t.Setenv("CFGSYNC_PROJECT_DIR", projectDir)
	t.Setenv("CFGSYNC_MIRROR_DIR", filepath.Join(t.TempDir(), "mirror"))
	t.Setenv("CFGSYNC_REMOTE_URL", upstream)
	return projectDir
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	app, stdout, _ := testApp()

	code := app.Run(context.Background(), nil)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "Usage: cfgsync")
}

func TestRunHelp(t *testing.T) {
	app, stdout, _ := testApp()

	code := app.Run(context.Background(), []string{"help"})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "push [message]")
}

func TestRunUnknownCommand(t *testing.T) {
	app, _, stderr := testApp()

	code := app.Run(context.Background(), []string{"destroy"})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown command: destroy")
}

func TestPushBeforeInitFails(t *testing.T) {
	setupEnv(t)
	app, _, stderr := testApp()

	code := app.Run(context.Background(), []string{"push"})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "run `cfgsync init` first")
}

func TestInitPushStatusPullFlow(t *testing.T) {
	projectDir := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "config.json"), []byte(`{"a":1}`), 0o644))

	app, stdout, stderr := testApp()
	ctx := context.Background()

	code := app.Run(ctx, []string{"init"})
	require.Equal(t, 0, code, "init failed: %s", stderr.String())
	assert.Contains(t, stdout.String(), "created new mirror store")

	stdout.Reset()
	code = app.Run(ctx, []string{"push", "first", "sync"})
	require.Equal(t, 0, code, "push failed: %s", stderr.String())
	assert.Contains(t, stdout.String(), "push complete")

	stdout.Reset()
	code = app.Run(ctx, []string{"status"})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "config.json: identical")
	assert.Contains(t, stdout.String(), "fully synchronized")
	assert.NotContains(t, stdout.String(), "plugins.json", "absent-in-both entries are silently skipped")

	stdout.Reset()
	code = app.Run(ctx, []string{"push"})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "nothing to push")

	stdout.Reset()
	code = app.Run(ctx, []string{"pull"})
	require.Equal(t, 0, code, "pull failed: %s", stderr.String())
	assert.Contains(t, stdout.String(), "pull complete")
}

func TestInitIsIdempotentThroughCLI(t *testing.T) {
	setupEnv(t)
	app, stdout, stderr := testApp()
	ctx := context.Background()

	require.Equal(t, 0, app.Run(ctx, []string{"init"}), "init failed: %s", stderr.String())
	stdout.Reset()

	require.Equal(t, 0, app.Run(ctx, []string{"init"}))
	assert.Contains(t, stdout.String(), "already initialized")
}

func TestStatusReportsDivergence(t *testing.T) {
	projectDir := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "config.json"), []byte("{\"a\":1}\n"), 0o644))

	app, stdout, stderr := testApp()
	ctx := context.Background()

	require.Equal(t, 0, app.Run(ctx, []string{"init"}), "init failed: %s", stderr.String())
	require.Equal(t, 0, app.Run(ctx, []string{"push"}), "push failed: %s", stderr.String())

	// Local edit after push: status must show a diff but exit 0.
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "config.json"), []byte("{\"a\":2}\n"), 0o644))
	stdout.Reset()
	code := app.Run(ctx, []string{"status"})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "config.json: differs")
	assert.Contains(t, stdout.String(), "--- mirror/config.json")
	assert.Contains(t, stdout.String(), "out of sync")
}
