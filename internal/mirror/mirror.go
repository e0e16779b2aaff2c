// Package mirror implements the mirror store: a git repository used as the
// transport medium for synchronizing a fixed set of configuration files
// between machines. It operates exclusively through go-billy filesystems so
// the same code runs against the real OS filesystem and in-memory test
// filesystems.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBranch is the canonical branch name for the mirror store.
	DefaultBranch = "main"

	// DefaultRemoteName is the name of the primary remote.
	DefaultRemoteName = "origin"

	// readmeName is the descriptive document written into a freshly
	// initialized mirror store.
	readmeName = "README.md"
)

const readmeContent = `# Configuration mirror

This repository is managed by cfgsync. It holds copies of a fixed set of
configuration files so they can be synchronized between machines. Do not
edit files here by hand; run cfgsync push from the project directory
instead.
`

// Signature identifies the author of mirror store commits.
type Signature struct {
	// Name is the commit author's name.
	Name string

	// Email is the commit author's email address.
	Email string
}

// Options configures access to the mirror store and the project directory
// it synchronizes with. A populated Options is passed explicitly into every
// operation; the package keeps no global state.
type Options struct {
	// StoreFS is the REQUIRED filesystem rooted at the mirror store
	// directory. The directory does not need to exist yet for Init.
	StoreFS billy.Filesystem

	// ProjectFS is the REQUIRED filesystem rooted at the project directory
	// holding the live configuration files.
	ProjectFS billy.Filesystem

	// RemoteURL is the upstream address of the mirror store.
	RemoteURL string

	// PushURLs lists additional push targets kept as secondary remotes.
	// They receive every push after the primary remote succeeds.
	PushURLs []string

	// Branch is the canonical branch name. Defaults to DefaultBranch.
	Branch string

	// Files is the registry: the ordered list of relative file names
	// subject to synchronization.
	Files []string

	// Author signs mirror store commits. Defaults to "cfgsync" with a
	// host-derived email.
	Author Signature
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	if o.StoreFS == nil {
		return WrapError(ErrInvalidOptions, "StoreFS is required")
	}
	if o.ProjectFS == nil {
		return WrapError(ErrInvalidOptions, "ProjectFS is required")
	}
	if len(o.Files) == 0 {
		return WrapError(ErrInvalidOptions, "registry is empty")
	}
	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Branch == "" {
		o.Branch = DefaultBranch
	}
	if o.Author.Name == "" {
		o.Author.Name = "cfgsync"
	}
	if o.Author.Email == "" {
		o.Author.Email = "cfgsync@" + hostname()
	}
}

// InitOutcome reports which path Init took.
type InitOutcome int

const (
	// AlreadyInitialized means a mirror store was already present locally
	// and Init was a no-op.
	AlreadyInitialized InitOutcome = iota

	// Cloned means the remote existed with content and was cloned.
	Cloned

	// Created means the remote was absent or empty, so a fresh local
	// repository was created. Nothing has been pushed; the operator is
	// expected to create the remote and push manually.
	Created
)

// String returns a human-readable string representation of the InitOutcome.
func (o InitOutcome) String() string {
	switch o {
	case AlreadyInitialized:
		return "already-initialized"
	case Cloned:
		return "cloned"
	case Created:
		return "created"
	default:
		return "unknown"
	}
}

// Store represents an initialized mirror store and provides the push and
// pull synchronization operations.
type Store struct {
	repo     *gogit.Repository
	worktree *gogit.Worktree
	opts     Options
}

// Open opens an existing mirror store. It returns ErrNotInitialized when no
// repository is present at the store location.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	if !initialized(opts.StoreFS) {
		return nil, WrapError(ErrNotInitialized, "run init first")
	}

	repo, err := gogit.Open(newStorage(opts.StoreFS), opts.StoreFS)
	if err != nil {
		return nil, WrapError(err, "failed to open mirror store")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree")
	}

	// Push URLs come from configuration and can be added after the store
	// was initialized; register any remotes still missing.
	if err := registerPushRemotes(repo, opts.PushURLs); err != nil {
		return nil, err
	}

	return &Store{repo: repo, worktree: worktree, opts: opts}, nil
}

// Init ensures a mirror store exists locally. If one is already present the
// call is an idempotent no-op. Otherwise the remote is probed: a reachable,
// non-empty remote is cloned; an absent or empty remote leads to a fresh
// local repository with a placeholder document, an initial commit on the
// canonical branch and a registered remote, deliberately without pushing.
//
// After the repository exists, every registry file present in the project
// directory is copied into the store unconditionally. No commit is made for
// those copies; that is left to the next push.
func Init(ctx context.Context, opts Options) (*Store, InitOutcome, error) {
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}
	opts.applyDefaults()

	if initialized(opts.StoreFS) {
		store, err := Open(ctx, opts)
		if err != nil {
			return nil, 0, err
		}
		return store, AlreadyInitialized, nil
	}

	if opts.RemoteURL == "" {
		return nil, 0, WrapError(ErrInvalidOptions, "remote URL is required")
	}

	empty, err := remoteEmpty(ctx, opts.RemoteURL)
	if err != nil {
		return nil, 0, err
	}

	var (
		repo    *gogit.Repository
		outcome InitOutcome
	)
	if empty {
		repo, err = initFresh(ctx, opts)
		outcome = Created
	} else {
		repo, err = gogit.CloneContext(ctx, newStorage(opts.StoreFS), opts.StoreFS, &gogit.CloneOptions{
			URL:        opts.RemoteURL,
			RemoteName: DefaultRemoteName,
		})
		err = WrapError(err, "failed to clone mirror store")
		outcome = Cloned
	}
	if err != nil {
		return nil, 0, err
	}

	if err := registerPushRemotes(repo, opts.PushURLs); err != nil {
		return nil, 0, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, 0, WrapError(err, "failed to get worktree")
	}
	store := &Store{repo: repo, worktree: worktree, opts: opts}

	// Seed the store with whatever the project currently has. Left
	// uncommitted so the next push records it.
	for _, name := range opts.Files {
		data, ok, err := readIfExists(opts.ProjectFS, name)
		if err != nil {
			return nil, 0, WrapErrorf(err, "failed to read %q from project", name)
		}
		if !ok {
			continue
		}
		if err := writeFile(opts.StoreFS, name, data); err != nil {
			return nil, 0, WrapErrorf(err, "failed to copy %q into mirror store", name)
		}
	}

	return store, outcome, nil
}

// remoteEmpty probes the remote without touching local storage. It reports
// true when the remote is absent or has no refs, the two cases where init
// falls back to creating a fresh local repository.
func remoteEmpty(ctx context.Context, url string) (bool, error) {
	probe := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "probe",
		URLs: []string{url},
	})

	refs, err := probe.ListContext(ctx, &gogit.ListOptions{})
	switch {
	case err == nil:
		return len(refs) == 0, nil
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository):
		return true, nil
	default:
		return false, fmt.Errorf("failed to probe remote %q: %w: %w", url, ErrRemoteUnreachable, err)
	}
}

// initFresh creates a new repository with the placeholder document
// committed on the canonical branch and the primary remote registered.
func initFresh(ctx context.Context, opts Options) (*gogit.Repository, error) {
	repo, err := gogit.Init(newStorage(opts.StoreFS), opts.StoreFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	// Point HEAD at the canonical branch before the first commit so the
	// branch is born with the right name.
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(opts.Branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, WrapError(err, "failed to set canonical branch")
	}

	if err := util.WriteFile(opts.StoreFS, readmeName, []byte(readmeContent), 0o644); err != nil {
		return nil, WrapError(err, "failed to write placeholder document")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree")
	}
	if _, err := worktree.Add(readmeName); err != nil {
		return nil, WrapError(err, "failed to stage placeholder document")
	}
	if _, err := worktree.Commit("initialize mirror store", &gogit.CommitOptions{
		Author: opts.signature(),
	}); err != nil {
		return nil, WrapError(err, "failed to create initial commit")
	}

	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: DefaultRemoteName,
		URLs: []string{opts.RemoteURL},
	}); err != nil {
		return nil, WrapError(err, "failed to register remote")
	}

	log.Info().Str("remote", opts.RemoteURL).
		Msg("created fresh mirror store; create the remote and push manually")

	return repo, nil
}

// registerPushRemotes creates one secondary remote per extra push URL.
// Remotes that already exist are left as they are.
func registerPushRemotes(repo *gogit.Repository, urls []string) error {
	for i, url := range urls {
		name := fmt.Sprintf("mirror%d", i)
		_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: name,
			URLs: []string{url},
		})
		if err != nil && !errors.Is(err, gogit.ErrRemoteExists) {
			return WrapErrorf(err, "failed to register push remote %q", name)
		}
	}
	return nil
}

// pushRemoteNames returns the names of the secondary push remotes in
// registration order.
func (o *Options) pushRemoteNames() []string {
	names := make([]string, 0, len(o.PushURLs))
	for i := range o.PushURLs {
		names = append(names, fmt.Sprintf("mirror%d", i))
	}
	return names
}

func (o *Options) signature() *object.Signature {
	return &object.Signature{
		Name:  o.Author.Name,
		Email: o.Author.Email,
		When:  time.Now(),
	}
}

func initialized(fs billy.Filesystem) bool {
	info, err := fs.Stat(gogit.GitDirName)
	return err == nil && info.IsDir()
}

func newStorage(fs billy.Filesystem) *filesystem.Storage {
	dotgit, err := fs.Chroot(gogit.GitDirName)
	if err != nil {
		// Chroot on billy filesystems only fails for malformed paths;
		// GitDirName is a constant, so fall back to the root.
		dotgit = fs
	}
	return filesystem.NewStorage(dotgit, cache.NewObjectLRUDefault())
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return host
}
