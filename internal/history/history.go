// Package history reads and extends a git repository's revision history.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/pkg/revision"
)

// Committer identity for commits created by git-audit.
const (
	CommitterName  = "git-audit"
	CommitterEmail = "git-audit@localhost"
)

var (
	// ErrNoRepository is returned when no repository contains the given path.
	ErrNoRepository = errors.New("not a git repository")
	// ErrForeignID is returned for identifiers wider than a git object id.
	ErrForeignID = errors.New("revision is not a git object id")
)

// Repository is an opened git repository with a work tree.
type Repository struct {
	repo   *git.Repository
	root   string
	logger *zap.Logger
}

// Open finds the repository containing path, walking up parent directories.
func Open(path string, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return nil, fmt.Errorf("%s is bare: %w", path, ErrNoRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("opening work tree: %w", err)
	}
	root := wt.Filesystem.Root()
	logger.Debug("repository opened", zap.String("root", root))
	return &Repository{repo: repo, root: root, logger: logger}, nil
}

// Root returns the work tree root.
func (r *Repository) Root() string { return r.root }

// Tip returns the commit HEAD resolves to. ok is false when HEAD is unborn.
func (r *Repository) Tip() (id revision.ID, ok bool, err error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return revision.ID{}, false, nil
	}
	if err != nil {
		return revision.ID{}, false, fmt.Errorf("resolving HEAD: %w", err)
	}
	return FromHash(ref.Hash()), true, nil
}

// Ancestry returns tip and every commit reachable from it.
func (r *Repository) Ancestry(tip revision.ID) (revision.Set, error) {
	from, err := ToHash(tip)
	if err != nil {
		return nil, err
	}
	iter, err := r.repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return nil, fmt.Errorf("walking history from %s: %w", tip, err)
	}
	defer iter.Close()

	set := revision.NewSet()
	err = iter.ForEach(func(c *object.Commit) error {
		set[FromHash(c.Hash)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking history from %s: %w", tip, err)
	}
	r.logger.Debug("history walked", zap.Stringer("tip", tip), zap.Int("commits", len(set)))
	return set, nil
}

// CommitFile commits the work tree file at rel on top of the current tip,
// creating a root commit when the history is empty. The new tree is the tip's
// tree with that one file inserted or replaced; the index and any staged
// changes do not contribute to it. The branch HEAD points at is advanced.
func (r *Repository) CommitFile(rel, message string) (revision.ID, error) {
	if filepath.IsAbs(rel) {
		var err error
		if rel, err = filepath.Rel(r.root, rel); err != nil {
			return revision.ID{}, fmt.Errorf("locating %s in work tree: %w", rel, err)
		}
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || strings.HasPrefix(rel, "../") {
		return revision.ID{}, fmt.Errorf("%s is outside the work tree", rel)
	}

	blob, mode, err := r.writeBlob(rel)
	if err != nil {
		return revision.ID{}, err
	}

	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return revision.ID{}, fmt.Errorf("reading HEAD: %w", err)
	}
	var (
		parents []plumbing.Hash
		base    *object.Tree
	)
	if tip, err := r.repo.Head(); err == nil {
		c, err := r.repo.CommitObject(tip.Hash())
		if err != nil {
			return revision.ID{}, fmt.Errorf("reading tip %s: %w", tip.Hash(), err)
		}
		if base, err = c.Tree(); err != nil {
			return revision.ID{}, fmt.Errorf("reading tree of %s: %w", tip.Hash(), err)
		}
		parents = []plumbing.Hash{tip.Hash()}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return revision.ID{}, fmt.Errorf("resolving HEAD: %w", err)
	}

	tree, err := r.insert(base, strings.Split(rel, "/"), object.TreeEntry{Mode: mode, Hash: blob})
	if err != nil {
		return revision.ID{}, fmt.Errorf("building tree with %s: %w", rel, err)
	}

	sig := object.Signature{Name: CommitterName, Email: CommitterEmail, When: time.Now()}
	hash, err := r.store(&object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	})
	if err != nil {
		return revision.ID{}, fmt.Errorf("committing %s: %w", rel, err)
	}

	branch := plumbing.HEAD
	if head.Type() == plumbing.SymbolicReference {
		branch = head.Target()
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(branch, hash)); err != nil {
		return revision.ID{}, fmt.Errorf("updating %s: %w", branch, err)
	}
	r.logger.Info("settings committed",
		zap.String("file", rel),
		zap.String("commit", hash.String()),
		zap.String("ref", branch.String()),
	)

	// Keep the index entry for rel in step with the new commit so the file
	// does not show as changed. Other index entries are left alone.
	if wt, err := r.repo.Worktree(); err == nil {
		if _, err := wt.Add(rel); err != nil {
			r.logger.Warn("staging committed file failed", zap.String("file", rel), zap.Error(err))
		}
	}
	return FromHash(hash), nil
}

// writeBlob stores the work tree file at rel as a blob.
func (r *Repository) writeBlob(rel string) (plumbing.Hash, filemode.FileMode, error) {
	path := filepath.Join(r.root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return plumbing.ZeroHash, 0, fmt.Errorf("reading %s: %w", rel, err)
	}
	mode, err := filemode.NewFromOSFileMode(info.Mode())
	if err != nil {
		return plumbing.ZeroHash, 0, fmt.Errorf("%s: %w", rel, err)
	}
	if mode != filemode.Regular && mode != filemode.Executable {
		return plumbing.ZeroHash, 0, fmt.Errorf("%s is not a regular file", rel)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return plumbing.ZeroHash, 0, fmt.Errorf("reading %s: %w", rel, err)
	}

	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, 0, err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, 0, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, 0, err
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, 0, fmt.Errorf("storing blob for %s: %w", rel, err)
	}
	return h, mode, nil
}

// insert returns the hash of base with leaf placed at path, writing every
// tree along the way. A nil base is the empty tree.
func (r *Repository) insert(base *object.Tree, path []string, leaf object.TreeEntry) (plumbing.Hash, error) {
	name := path[0]
	var entries []object.TreeEntry
	var existing *object.TreeEntry
	if base != nil {
		for i, e := range base.Entries {
			if e.Name == name {
				existing = &base.Entries[i]
				continue
			}
			entries = append(entries, e)
		}
	}

	entry := leaf
	entry.Name = name
	if len(path) > 1 {
		var sub *object.Tree
		if existing != nil && existing.Mode == filemode.Dir {
			t, err := r.repo.TreeObject(existing.Hash)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			sub = t
		}
		h, err := r.insert(sub, path[1:], leaf)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entry = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h}
	}
	entries = append(entries, entry)
	sort.Slice(entries, func(i, j int) bool {
		return treeOrder(entries[i]) < treeOrder(entries[j])
	})
	return r.store(&object.Tree{Entries: entries})
}

// treeOrder is git's tree sort key: directories compare as if suffixed by '/'.
func treeOrder(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

type encoder interface {
	Encode(plumbing.EncodedObject) error
}

func (r *Repository) store(o encoder) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

// FromHash widens a git object id to a revision id.
func FromHash(h plumbing.Hash) revision.ID {
	id, _ := revision.FromBytes(h[:])
	return id
}

// ToHash narrows id to a git object id. It fails when id does not fit.
func ToHash(id revision.ID) (plumbing.Hash, error) {
	b := id.Bytes()
	for _, x := range b[:revision.Size-len(plumbing.ZeroHash)] {
		if x != 0 {
			return plumbing.ZeroHash, fmt.Errorf("%s: %w", id.Hex(), ErrForeignID)
		}
	}
	var h plumbing.Hash
	copy(h[:], b[revision.Size-len(h):])
	return h, nil
}
