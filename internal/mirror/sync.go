// Package mirror provides the mirror store for configuration file sync.
// This file contains the directional synchronization operations: push
// (project to mirror) and pull (mirror to project).
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/rs/zerolog/log"
)

// PushResult describes what a push did.
type PushResult struct {
	// Copied lists registry entries whose mirror copy was overwritten
	// because the project copy differed or the mirror copy was absent.
	Copied []string

	// Skipped lists registry entries missing from the project directory.
	Skipped []string

	// Commit is the hash of the commit created by this push, or empty when
	// the staged files did not differ from the last committed state.
	Commit string
}

// PullResult describes what a pull did.
type PullResult struct {
	// Updated lists registry entries copied from the mirror store into the
	// project directory.
	Updated []string

	// Missing lists registry entries absent from the mirror store; the
	// project copies were left untouched.
	Missing []string
}

// Push copies changed registry files from the project directory into the
// mirror store, commits them and pushes to the remote. Entries missing from
// the project directory are skipped with a warning. When nothing differs
// from the last committed state and every remote is already up to date,
// Push returns ErrNothingToSync; it never creates an empty commit.
//
// A commit whose push fails is preserved locally; the next push retries it
// even when no file changed in between.
func (s *Store) Push(ctx context.Context, message string) (*PushResult, error) {
	result := &PushResult{}

	for _, name := range s.opts.Files {
		data, ok, err := readIfExists(s.opts.ProjectFS, name)
		if err != nil {
			return nil, WrapErrorf(err, "failed to read %q from project", name)
		}
		if !ok {
			log.Warn().Str("file", name).Msg("registry entry missing from project directory; skipping")
			result.Skipped = append(result.Skipped, name)
			continue
		}

		current, exists, err := readIfExists(s.opts.StoreFS, name)
		if err != nil {
			return nil, WrapErrorf(err, "failed to read %q from mirror store", name)
		}
		if exists && sameContent(data, current) {
			continue
		}

		if err := writeFile(s.opts.StoreFS, name, data); err != nil {
			return nil, WrapErrorf(err, "failed to copy %q into mirror store", name)
		}
		result.Copied = append(result.Copied, name)
	}

	// Stage every registry entry present in the store, not just the ones
	// copied above: init leaves its seed copies uncommitted, and those must
	// be picked up by the first push. Adding an unmodified tracked file is
	// a no-op, so this stages nothing when the store matches HEAD.
	for _, name := range s.opts.Files {
		if _, ok, err := readIfExists(s.opts.StoreFS, name); err != nil {
			return nil, WrapErrorf(err, "failed to read %q from mirror store", name)
		} else if !ok {
			continue
		}
		if _, err := s.worktree.Add(name); err != nil {
			return nil, WrapErrorf(err, "failed to stage %q", name)
		}
	}

	staged, err := s.stagedCount()
	if err != nil {
		return nil, err
	}
	if staged > 0 {
		if message == "" {
			message = autoMessage()
		}
		hash, err := s.worktree.Commit(message, &gogit.CommitOptions{
			Author: s.opts.signature(),
		})
		if err != nil {
			return nil, WrapError(err, "failed to commit")
		}
		result.Commit = hash.String()
		log.Info().Str("commit", result.Commit).Int("files", staged).Msg("committed registry changes")
	}

	// Push even when no commit was created: an earlier push may have failed
	// after committing, and the dangling commit must still reach the remote.
	originErr := s.repo.PushContext(ctx, &gogit.PushOptions{RemoteName: DefaultRemoteName})
	switch {
	case originErr == nil, errors.Is(originErr, gogit.NoErrAlreadyUpToDate):
	case errors.Is(originErr, gogit.ErrNonFastForwardUpdate):
		return result, WrapError(ErrNotFastForward, "remote has commits this machine does not; reconcile manually")
	default:
		return result, fmt.Errorf("push to %s failed (local commit preserved): %w: %w",
			DefaultRemoteName, ErrRemoteUnreachable, originErr)
	}

	// Every secondary mirror is attempted even when the primary was already
	// up to date, so a mirror that missed an earlier push catches up here.
	// One unreachable mirror does not block the rest.
	updated := originErr == nil
	var secondaryErrs []error
	for _, name := range s.opts.pushRemoteNames() {
		err := s.repo.PushContext(ctx, &gogit.PushOptions{RemoteName: name})
		switch {
		case err == nil:
			updated = true
		case errors.Is(err, gogit.NoErrAlreadyUpToDate):
		default:
			secondaryErrs = append(secondaryErrs,
				fmt.Errorf("push to %s failed: %w: %w", name, ErrRemoteUnreachable, err))
		}
	}
	if err := errors.Join(secondaryErrs...); err != nil {
		return result, err
	}

	if result.Commit == "" && !updated {
		return result, ErrNothingToSync
	}

	return result, nil
}

// Pull updates the mirror store from the remote and then copies every
// registry entry present in the store into the project directory,
// overwriting local copies unconditionally: the mirror is the source of
// truth in this direction. Entries absent from the store produce a warning
// and leave the project copy untouched.
func (s *Store) Pull(ctx context.Context) (*PullResult, error) {
	err := s.worktree.PullContext(ctx, &gogit.PullOptions{RemoteName: DefaultRemoteName})
	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
	case errors.Is(err, gogit.ErrNonFastForwardUpdate):
		return nil, WrapError(ErrNotFastForward, "mirror store has local commits the remote does not; reconcile manually")
	default:
		return nil, fmt.Errorf("pull from %s failed: %w: %w", DefaultRemoteName, ErrRemoteUnreachable, err)
	}

	result := &PullResult{}
	for _, name := range s.opts.Files {
		data, ok, err := readIfExists(s.opts.StoreFS, name)
		if err != nil {
			return nil, WrapErrorf(err, "failed to read %q from mirror store", name)
		}
		if !ok {
			log.Warn().Str("file", name).Msg("registry entry missing from mirror store; project copy untouched")
			result.Missing = append(result.Missing, name)
			continue
		}
		if err := writeFile(s.opts.ProjectFS, name, data); err != nil {
			return nil, WrapErrorf(err, "failed to copy %q into project directory", name)
		}
		result.Updated = append(result.Updated, name)
	}

	return result, nil
}

// stagedCount returns the number of files staged in the index.
func (s *Store) stagedCount() (int, error) {
	status, err := s.worktree.Status()
	if err != nil {
		return 0, WrapError(err, "failed to get worktree status")
	}

	staged := 0
	for _, fileStatus := range status {
		if fileStatus.Staging != gogit.Untracked && fileStatus.Staging != gogit.Unmodified {
			staged++
		}
	}
	return staged, nil
}

func autoMessage() string {
	return fmt.Sprintf("sync from %s at %s", hostname(), time.Now().Format(time.RFC3339))
}
