// Package mirror provides the mirror store for configuration file sync.
// This file contains the read-only diff engine backing the status command.
package mirror

import (
	"github.com/pmezard/go-difflib/difflib"
)

// EntryState classifies one registry entry after comparing the project
// directory and the mirror store byte-for-byte.
type EntryState int

const (
	// Identical means both sides have the file with the same content.
	Identical EntryState = iota

	// Differs means both sides have the file with different content.
	Differs

	// OnlyInProject means the file exists in the project directory only.
	OnlyInProject

	// OnlyInMirror means the file exists in the mirror store only.
	OnlyInMirror

	// AbsentInBoth means neither side has the file.
	AbsentInBoth
)

// String returns a human-readable string representation of the EntryState.
func (s EntryState) String() string {
	switch s {
	case Identical:
		return "identical"
	case Differs:
		return "differs"
	case OnlyInProject:
		return "only-in-project"
	case OnlyInMirror:
		return "only-in-mirror"
	case AbsentInBoth:
		return "absent-in-both"
	default:
		return "unknown"
	}
}

// EntryStatus is the status of a single registry entry.
type EntryStatus struct {
	// Name is the registry entry's relative file name.
	Name string

	// State is the comparison result.
	State EntryState

	// Diff holds a unified diff (mirror on the left, project on the right)
	// when State is Differs; empty otherwise.
	Diff string
}

// Report is the result of comparing every registry entry. Entry order
// follows the registry.
type Report struct {
	Entries []EntryStatus
}

// Synchronized reports whether every entry is either identical on both
// sides or absent from both.
func (r *Report) Synchronized() bool {
	for _, e := range r.Entries {
		if e.State != Identical && e.State != AbsentInBoth {
			return false
		}
	}
	return true
}

// Status compares each registry entry between the project directory and the
// mirror store. It is read-only, mutates neither side, and does not require
// the mirror store to be an initialized repository: a missing store
// directory simply classifies everything present as only-in-project.
func Status(opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	report := &Report{}
	for _, name := range opts.Files {
		project, inProject, err := readIfExists(opts.ProjectFS, name)
		if err != nil {
			return nil, WrapErrorf(err, "failed to read %q from project", name)
		}
		mirrored, inMirror, err := readIfExists(opts.StoreFS, name)
		if err != nil {
			return nil, WrapErrorf(err, "failed to read %q from mirror store", name)
		}

		entry := EntryStatus{Name: name}
		switch {
		case inProject && inMirror && sameContent(project, mirrored):
			entry.State = Identical
		case inProject && inMirror:
			entry.State = Differs
			entry.Diff, err = unifiedDiff(name, mirrored, project)
			if err != nil {
				return nil, WrapErrorf(err, "failed to diff %q", name)
			}
		case inProject:
			entry.State = OnlyInProject
		case inMirror:
			entry.State = OnlyInMirror
		default:
			entry.State = AbsentInBoth
		}
		report.Entries = append(report.Entries, entry)
	}

	return report, nil
}

// unifiedDiff renders a unified diff with the mirror copy as the old side
// and the project copy as the new side, matching the push direction.
func unifiedDiff(name string, mirrored, project []byte) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(mirrored)),
		B:        difflib.SplitLines(string(project)),
		FromFile: "mirror/" + name,
		ToFile:   "project/" + name,
		Context:  3,
	})
}
