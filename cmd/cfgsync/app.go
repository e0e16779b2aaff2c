package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/chatmesh/cfgsync/internal/config"
	"github.com/chatmesh/cfgsync/internal/mirror"
)

const usageText = `Usage: cfgsync <command>

Synchronize configuration files between machines through a git mirror.

Commands:
  init            set up the local mirror store (clone the remote, or
                  create a fresh repository when the remote is empty)
  push [message]  copy changed files into the mirror, commit and push
  pull            update the mirror from the remote and copy files back
  status          compare project and mirror without changing either
  help            show this message

Configuration is read from cfgsync.toml in the project directory and from
CFGSYNC_* environment variables (CFGSYNC_MIRROR_DIR, CFGSYNC_REMOTE_URL,
CFGSYNC_PROJECT_DIR, ...).
`

// App is the cfgsync command-line application. I/O and configuration
// loading are injectable so commands can be exercised in tests.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// LoadConfig resolves the configuration for this invocation.
	LoadConfig func() (config.Config, error)
}

// NewDefaultApp creates an App wired to the real process environment.
func NewDefaultApp() *App {
	return &App{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		LoadConfig: config.Load,
	}
}

// Run dispatches the subcommand and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.Stdout, usageText)
		return 0
	}

	switch args[0] {
	case "help", "-h", "--help":
		fmt.Fprint(a.Stdout, usageText)
		return 0
	case "init":
		return a.runInit(ctx)
	case "push":
		return a.runPush(ctx, strings.Join(args[1:], " "))
	case "pull":
		return a.runPull(ctx)
	case "status":
		return a.runStatus()
	default:
		fmt.Fprintf(a.Stderr, "unknown command: %s\n\n", args[0])
		fmt.Fprint(a.Stderr, usageText)
		return 1
	}
}

// options loads the configuration and translates it into mirror.Options.
func (a *App) options() (mirror.Options, error) {
	cfg, err := a.LoadConfig()
	if err != nil {
		return mirror.Options{}, err
	}

	return mirror.Options{
		StoreFS:   osfs.New(cfg.MirrorDir),
		ProjectFS: osfs.New(cfg.ProjectDir),
		RemoteURL: cfg.RemoteURL,
		PushURLs:  cfg.PushURLs,
		Branch:    cfg.Branch,
		Files:     cfg.Files,
		Author: mirror.Signature{
			Name:  cfg.Author.Name,
			Email: cfg.Author.Email,
		},
	}, nil
}

func (a *App) runInit(ctx context.Context) int {
	opts, err := a.options()
	if err != nil {
		return a.fail(err)
	}

	_, outcome, err := mirror.Init(ctx, opts)
	if err != nil {
		return a.fail(err)
	}

	switch outcome {
	case mirror.AlreadyInitialized:
		fmt.Fprintln(a.Stdout, "mirror store already initialized")
	case mirror.Cloned:
		fmt.Fprintf(a.Stdout, "cloned mirror store from %s\n", opts.RemoteURL)
	case mirror.Created:
		fmt.Fprintf(a.Stdout, "created new mirror store; create %s and run `cfgsync push`\n", opts.RemoteURL)
	}
	return 0
}

func (a *App) runPush(ctx context.Context, message string) int {
	store, ok, code := a.openStore(ctx)
	if !ok {
		return code
	}

	result, err := store.Push(ctx, message)
	if errors.Is(err, mirror.ErrNothingToSync) {
		fmt.Fprintln(a.Stdout, "nothing to push")
		return 0
	}
	if err != nil {
		return a.fail(err)
	}

	for _, name := range result.Copied {
		fmt.Fprintf(a.Stdout, "pushed %s\n", name)
	}
	if result.Commit != "" {
		fmt.Fprintf(a.Stdout, "committed %s\n", result.Commit)
	}
	fmt.Fprintln(a.Stdout, "push complete")
	return 0
}

func (a *App) runPull(ctx context.Context) int {
	store, ok, code := a.openStore(ctx)
	if !ok {
		return code
	}

	result, err := store.Pull(ctx)
	if err != nil {
		return a.fail(err)
	}

	for _, name := range result.Updated {
		fmt.Fprintf(a.Stdout, "updated %s\n", name)
	}
	fmt.Fprintln(a.Stdout, "pull complete")
	return 0
}

func (a *App) runStatus() int {
	opts, err := a.options()
	if err != nil {
		return a.fail(err)
	}

	report, err := mirror.Status(opts)
	if err != nil {
		return a.fail(err)
	}

	for _, entry := range report.Entries {
		if entry.State == mirror.AbsentInBoth {
			continue
		}
		fmt.Fprintf(a.Stdout, "%s: %s\n", entry.Name, entry.State)
		if entry.Diff != "" {
			fmt.Fprint(a.Stdout, entry.Diff)
		}
	}
	if report.Synchronized() {
		fmt.Fprintln(a.Stdout, "fully synchronized")
	} else {
		fmt.Fprintln(a.Stdout, "out of sync; run `cfgsync push` or `cfgsync pull`")
	}
	return 0
}

// openStore opens the mirror store for push/pull, translating a missing
// store into the canonical "run init first" failure.
func (a *App) openStore(ctx context.Context) (*mirror.Store, bool, int) {
	opts, err := a.options()
	if err != nil {
		return nil, false, a.fail(err)
	}

	store, err := mirror.Open(ctx, opts)
	if errors.Is(err, mirror.ErrNotInitialized) {
		fmt.Fprintln(a.Stderr, "error: mirror store not initialized; run `cfgsync init` first")
		return nil, false, 1
	}
	if err != nil {
		return nil, false, a.fail(err)
	}
	return store, true, 0
}

func (a *App) fail(err error) int {
	fmt.Fprintf(a.Stderr, "error: %v\n", err)
	return 1
}
