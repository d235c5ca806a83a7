// Package revisions keeps a git history per post so edits can be audited
// and older content recovered.
package revisions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Content is the snapshot of a post committed on every write.
type Content struct {
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	Excerpt string   `json:"excerpt,omitempty"`
	Image   string   `json:"image,omitempty"`
	Status  string   `json:"status"`
	Tags    []string `json:"tags,omitempty"`
	Content string   `json:"content"`
}

// CommitInfo describes one entry in a post's history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Save commits a post snapshot, initializing the repository on first write.
func (s *Service) Save(postID string, content Content, author, message string) (CommitInfo, error) {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(postID)
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = s.initRepo(path)
	}
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := commitContent(repo, path, content, author, message)
	if err != nil {
		return CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History returns the newest-first commit log for a post. A post that was
// never committed has an empty history.
func (s *Service) History(postID string, limit int) ([]CommitInfo, error) {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(postID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return []CommitInfo{}, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the post snapshot stored at a given commit hash.
// Abbreviated hashes are resolved.
func (s *Service) ContentAt(postID, hash string) (Content, error) {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(postID))
	if err != nil {
		return Content{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

// Remove deletes a post's repository. Called when the post itself is deleted.
func (s *Service) Remove(postID string) error {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(postID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(postID string) string {
	return filepath.Join(s.baseDir, postID)
}

func (s *Service) postLock(postID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[postID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[postID] = lock
	return lock
}

func (s *Service) initRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func commitContent(repo *git.Repository, path string, content Content, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "post.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write post.json: %w", err)
	}
	if _, err := worktree.Add("post.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.gazette.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File("post.json")
	if err != nil {
		return Content{}, fmt.Errorf("load post.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
