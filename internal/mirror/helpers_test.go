package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

var testRegistry = []string{"config.json", "plugins.json"}

// testOptions returns Options over in-memory filesystems. The remote URL is
// left empty; tests that need a remote point it at a bare upstream created
// with newBareUpstream.
func testOptions(t *testing.T) Options {
	t.Helper()

	return Options{
		StoreFS:   memfs.New(),
		ProjectFS: memfs.New(),
		Files:     append([]string(nil), testRegistry...),
		Author:    Signature{Name: "tester", Email: "tester@example.com"},
	}
}

// newBareUpstream creates an empty bare repository on disk that local-path
// remotes can push to and fetch from. Its HEAD is pointed at main so clones
// resolve the canonical branch.
func newBareUpstream(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "upstream.git")
	repo, err := gogit.PlainInit(dir, true)
	require.NoError(t, err, "failed to init bare upstream")

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(DefaultBranch))
	require.NoError(t, repo.Storer.SetReference(head))

	return dir
}

// seedUpstream populates a bare upstream with one commit containing the
// given files, the way a first machine's push would.
func seedUpstream(t *testing.T, upstream string, files map[string]string) {
	t.Helper()

	seed := filepath.Join(t.TempDir(), "seed")
	repo, err := gogit.PlainInit(seed, false)
	require.NoError(t, err, "failed to init seed repository")

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(DefaultBranch))
	require.NoError(t, repo.Storer.SetReference(head))

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(seed, name), []byte(content), 0o644))
		_, err = worktree.Add(name)
		require.NoError(t, err, "failed to stage %s", name)
	}

	_, err = worktree.Commit("seed upstream", &gogit.CommitOptions{
		Author: &object.Signature{Name: "seeder", Email: "seeder@example.com"},
	})
	require.NoError(t, err)

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: DefaultRemoteName,
		URLs: []string{upstream},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Push(&gogit.PushOptions{RemoteName: DefaultRemoteName}))
}

// writeProjectFile writes a file into a test filesystem.
func writeProjectFile(t *testing.T, fs billy.Filesystem, name, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
}

// readTestFile reads a file from a test filesystem and fails if absent.
func readTestFile(t *testing.T, fs billy.Filesystem, name string) string {
	t.Helper()
	data, err := util.ReadFile(fs, name)
	require.NoError(t, err, "failed to read %s", name)
	return string(data)
}

// headCommit returns the commit at the store's HEAD.
func headCommit(t *testing.T, store *Store) *object.Commit {
	t.Helper()

	head, err := store.repo.Head()
	require.NoError(t, err)
	commit, err := store.repo.CommitObject(head.Hash())
	require.NoError(t, err)
	return commit
}
