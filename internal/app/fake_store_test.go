package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"gazette/api/internal/authpw"
	"gazette/api/internal/config"
	"gazette/api/internal/export"
	"gazette/api/internal/store"
	"gazette/api/internal/util"
)

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

// memStore is a map-backed stand-in for PostgresStore covering the
// dataStore and sessionStore interfaces.
type memStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	posts    map[string]store.Post
	postTags map[string][]string
	tags     map[string]store.Tag
	comments map[string]store.Comment
	order    []string
	refresh  map[string]refreshRecord
	revoked  map[string]bool
	clock    time.Time
	pingErr  error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]store.User),
		posts:    make(map[string]store.Post),
		postTags: make(map[string][]string),
		tags:     make(map[string]store.Tag),
		comments: make(map[string]store.Comment),
		refresh:  make(map[string]refreshRecord),
		revoked:  make(map[string]bool),
		clock:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.CreatedAt = m.tick()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) UpdateUser(_ context.Context, user store.User) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	if user.PasswordHash == "" {
		user.PasswordHash = existing.PasswordHash
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = m.tick()
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ListUsers(_ context.Context, filter store.UserFilter) ([]store.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]store.User, 0, len(m.users))
	for _, user := range m.users {
		if filter.Search != "" &&
			!strings.Contains(strings.ToLower(user.Name), strings.ToLower(filter.Search)) &&
			!strings.Contains(strings.ToLower(user.Email), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, user)
	}
	sort.Slice(matched, func(i, j int) bool {
		switch filter.Sort {
		case "name":
			return matched[i].Name < matched[j].Name
		case "email":
			return matched[i].Email < matched[j].Email
		default:
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
	})
	total := len(matched)
	matched = page(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

func (m *memStore) InsertPost(_ context.Context, post store.Post, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post.CreatedAt = m.tick()
	post.UpdatedAt = post.CreatedAt
	m.posts[post.ID] = post
	m.postTags[post.ID] = append([]string{}, tagIDs...)
	return nil
}

func (m *memStore) UpdatePost(_ context.Context, post store.Post, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.posts[post.ID]
	if !ok {
		return sql.ErrNoRows
	}
	post.AuthorID = existing.AuthorID
	post.CreatedAt = existing.CreatedAt
	post.UpdatedAt = m.tick()
	m.posts[post.ID] = post
	m.postTags[post.ID] = append([]string{}, tagIDs...)
	return nil
}

func (m *memStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.posts, id)
	delete(m.postTags, id)
	for commentID, comment := range m.comments {
		if comment.PostID == id {
			m.dropComment(commentID)
		}
	}
	return nil
}

func (m *memStore) GetPostBySlug(_ context.Context, slug string) (store.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, post := range m.posts {
		if strings.EqualFold(post.Slug, slug) {
			return m.decorate(post), nil
		}
	}
	return store.Post{}, sql.ErrNoRows
}

func (m *memStore) GetPostByID(_ context.Context, id string) (store.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return store.Post{}, sql.ErrNoRows
	}
	return m.decorate(post), nil
}

func (m *memStore) SlugExists(_ context.Context, slug, excludePostID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, post := range m.posts {
		if strings.EqualFold(post.Slug, slug) && post.ID != excludePostID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListPosts(_ context.Context, filter store.PostFilter) ([]store.Post, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]store.Post, 0, len(m.posts))
	for _, post := range m.posts {
		if filter.Status != "" && post.Status != filter.Status {
			continue
		}
		if filter.AuthorID != "" && post.AuthorID != filter.AuthorID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(post.Title), strings.ToLower(filter.Search)) {
			continue
		}
		if len(filter.Tags) > 0 && !m.postHasAnyTag(post.ID, filter.Tags) {
			continue
		}
		matched = append(matched, m.decorate(post))
	}
	sort.Slice(matched, func(i, j int) bool {
		if filter.Oldest {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	matched = page(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

func (m *memStore) postHasAnyTag(postID string, names []string) bool {
	for _, tagID := range m.postTags[postID] {
		for _, tag := range m.tags {
			if tag.ID != tagID {
				continue
			}
			for _, name := range names {
				if tag.Name == strings.ToLower(name) {
					return true
				}
			}
		}
	}
	return false
}

func (m *memStore) decorate(post store.Post) store.Post {
	if author, ok := m.users[post.AuthorID]; ok {
		post.AuthorName = author.Name
		post.AuthorEmail = author.Email
	}
	tags := make([]store.Tag, 0)
	for _, tagID := range m.postTags[post.ID] {
		for _, tag := range m.tags {
			if tag.ID == tagID {
				tags = append(tags, tag)
			}
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	post.Tags = tags
	return post
}

func (m *memStore) EnsureTag(_ context.Context, id, name string) (store.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = strings.ToLower(name)
	if tag, ok := m.tags[name]; ok {
		return tag, nil
	}
	tag := store.Tag{ID: id, Name: name, Slug: util.Slugify(name)}
	m.tags[name] = tag
	return tag, nil
}

func (m *memStore) ListTags(context.Context) ([]store.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]store.Tag, 0, len(m.tags))
	for _, tag := range m.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (m *memStore) InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error) {
	m.mu.Lock()
	comment.CreatedAt = m.tick()
	comment.UpdatedAt = comment.CreatedAt
	m.comments[comment.ID] = comment
	m.order = append(m.order, comment.ID)
	m.mu.Unlock()
	return m.GetComment(ctx, comment.ID)
}

func (m *memStore) GetComment(_ context.Context, id string) (store.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment, ok := m.comments[id]
	if !ok {
		return store.Comment{}, sql.ErrNoRows
	}
	if author, ok := m.users[comment.AuthorID]; ok {
		comment.AuthorName = author.Name
		comment.AuthorEmail = author.Email
		comment.AuthorAvatar = author.Avatar
	}
	return comment, nil
}

func (m *memStore) UpdateCommentContent(ctx context.Context, id, content string) (store.Comment, error) {
	m.mu.Lock()
	comment, ok := m.comments[id]
	if !ok {
		m.mu.Unlock()
		return store.Comment{}, sql.ErrNoRows
	}
	comment.Content = content
	comment.UpdatedAt = m.tick()
	m.comments[id] = comment
	m.mu.Unlock()
	return m.GetComment(ctx, id)
}

func (m *memStore) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return sql.ErrNoRows
	}
	m.dropComment(id)
	return nil
}

// dropComment cascades like the self-FK does. Caller holds the lock.
func (m *memStore) dropComment(id string) {
	delete(m.comments, id)
	for childID, child := range m.comments {
		if child.ParentID != nil && *child.ParentID == id {
			m.dropComment(childID)
		}
	}
}

func (m *memStore) ListCommentsByPost(ctx context.Context, postID string) ([]store.Comment, error) {
	m.mu.Lock()
	ids := make([]string, 0)
	for _, id := range m.order {
		if comment, ok := m.comments[id]; ok && comment.PostID == postID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	rows := make([]store.Comment, 0, len(ids))
	for _, id := range ids {
		comment, err := m.GetComment(ctx, id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, comment)
	}
	return rows, nil
}

func (m *memStore) CommentDepth(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	depth := 0
	for {
		comment, ok := m.comments[id]
		if !ok {
			return 0, sql.ErrNoRows
		}
		depth++
		if comment.ParentID == nil {
			return depth, nil
		}
		id = *comment.ParentID
	}
}

func (m *memStore) CountCommentsByPost(_ context.Context, postID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, comment := range m.comments {
		if comment.PostID == postID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = refreshRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.refresh[tokenHash]
	if !ok || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return store.User{ID: record.userID}, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

// page mirrors SQL LIMIT/OFFSET: limit zero yields no rows.
func page[T any](items []T, offset, limit int) []T {
	if limit <= 0 || offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// test plumbing

func newTestService(ms *memStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			PublicURL:  "http://localhost:3000",
		},
		store:    ms,
		sessions: ms,
		authpw:   authpw.NewService(ms),
		export:   export.NewService(),
	}
}

func seedUser(t *testing.T, ms *memStore, id, name, email, role string) store.User {
	t.Helper()
	user := store.User{ID: id, Name: name, Email: email, Role: role}
	if err := ms.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

func sessionFor(t *testing.T, svc *Service, user store.User) Session {
	t.Helper()
	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session for %s: %v", user.ID, err)
	}
	return session
}
