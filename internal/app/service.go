package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"gazette/api/internal/auth"
	"gazette/api/internal/authpw"
	"gazette/api/internal/commenttree"
	"gazette/api/internal/config"
	"gazette/api/internal/email"
	"gazette/api/internal/export"
	"gazette/api/internal/listing"
	"gazette/api/internal/rbac"
	"gazette/api/internal/revisions"
	"gazette/api/internal/search"
	"gazette/api/internal/store"
	"gazette/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type PostInput struct {
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	Content string   `json:"content"`
	Excerpt string   `json:"excerpt"`
	Image   string   `json:"image"`
	Status  string   `json:"status"`
	Tags    []string `json:"tags"`
}

type CommentInput struct {
	Content  string  `json:"content"`
	PostID   string  `json:"postId"`
	ParentID *string `json:"parentId"`
}

type UserUpdateInput struct {
	Name     *string `json:"name"`
	Avatar   *string `json:"avatar"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	UpdateUser(context.Context, store.User) (store.User, error)
	DeleteUser(context.Context, string) error
	ListUsers(context.Context, store.UserFilter) ([]store.User, int, error)
	InsertPost(context.Context, store.Post, []string) error
	UpdatePost(context.Context, store.Post, []string) error
	DeletePost(context.Context, string) error
	GetPostBySlug(context.Context, string) (store.Post, error)
	GetPostByID(context.Context, string) (store.Post, error)
	SlugExists(context.Context, string, string) (bool, error)
	ListPosts(context.Context, store.PostFilter) ([]store.Post, int, error)
	EnsureTag(context.Context, string, string) (store.Tag, error)
	ListTags(context.Context) ([]store.Tag, error)
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	UpdateCommentContent(context.Context, string, string) (store.Comment, error)
	DeleteComment(context.Context, string) error
	ListCommentsByPost(context.Context, string) ([]store.Comment, error)
	CommentDepth(context.Context, string) (int, error)
	CountCommentsByPost(context.Context, string) (int, error)
	Ping(ctx context.Context) error
}

// sessionStore is satisfied by both session.RedisStore and
// store.PostgresStore; Redis wins when configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type postCache interface {
	GetPost(ctx context.Context, slug string) ([]byte, error)
	SetPost(ctx context.Context, slug string, payload []byte) error
	InvalidatePost(ctx context.Context, slug string) error
}

type postSearch interface {
	Search(q search.Query) search.Response
	IndexPost(p search.PostRecord)
	DeletePost(id string)
}

type revisionLog interface {
	Save(postID string, content revisions.Content, author, message string) (revisions.CommitInfo, error)
	History(postID string, limit int) ([]revisions.CommitInfo, error)
	ContentAt(postID, hash string) (revisions.Content, error)
	Remove(postID string) error
}

type mediaStore interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
	Remove(ctx context.Context, url string) error
}

type mailer interface {
	IsConfigured() bool
	SendReplyNotification(to string, data email.ReplyNotificationData) error
}

type Deps struct {
	Sessions  sessionStore
	Search    *search.Service
	Cache     postCache
	Media     mediaStore
	Email     *email.Service
	Revisions *revisions.Service
	Export    *export.Service
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	authpw    *authpw.Service
	search    postSearch
	cache     postCache
	media     mediaStore
	email     mailer
	revisions revisionLog
	export    *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		authpw:   authpw.NewService(dataStore),
		cache:    deps.Cache,
		media:    deps.Media,
		export:   deps.Export,
	}
	if deps.Sessions != nil {
		s.sessions = deps.Sessions
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Email != nil {
		s.email = deps.Email
	}
	if deps.Revisions != nil {
		s.revisions = deps.Revisions
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, perm rbac.Permission) bool {
	return rbac.Can(rbac.Normalize(role), perm)
}

// Auth and sessions

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, emailAddr, password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token. The stored session carries only the
// user id, so the user row is re-read here and a role change takes
// effect on the next rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Posts

func (s *Service) CreatePost(ctx context.Context, session Session, input PostInput) (map[string]any, error) {
	post := store.Post{
		ID:       util.NewID("post"),
		AuthorID: session.UserID,
	}
	tagNames, err := s.applyPostInput(ctx, &post, input)
	if err != nil {
		return nil, err
	}

	tagIDs, tags, err := s.ensureTags(ctx, tagNames)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertPost(ctx, post, tagIDs); err != nil {
		return nil, err
	}
	post.Tags = tags
	post.AuthorName = session.UserName

	s.recordRevision(post, session.UserName, "Create post")
	s.indexPost(post)
	return postPayload(post), nil
}

func (s *Service) UpdatePost(ctx context.Context, session Session, slug string, input PostInput) (map[string]any, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !rbac.CanResource(rbac.Normalize(session.Role), rbac.PermEditOwnPosts, rbac.PermEditAllPosts, post.AuthorID == session.UserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot edit this post", nil)
	}

	previousSlug := post.Slug
	tagNames, err := s.applyPostInput(ctx, &post, input)
	if err != nil {
		return nil, err
	}

	tagIDs, tags, err := s.ensureTags(ctx, tagNames)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdatePost(ctx, post, tagIDs); err != nil {
		return nil, err
	}
	post.Tags = tags

	s.recordRevision(post, session.UserName, "Update post")
	s.indexPost(post)
	s.invalidatePost(previousSlug)
	if post.Slug != previousSlug {
		s.invalidatePost(post.Slug)
	}
	return postPayload(post), nil
}

func (s *Service) DeletePost(ctx context.Context, session Session, slug string) error {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if !rbac.CanResource(rbac.Normalize(session.Role), rbac.PermDeleteOwnPosts, rbac.PermDeleteAllPosts, post.AuthorID == session.UserID) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "You cannot delete this post", nil)
	}
	if err := s.store.DeletePost(ctx, post.ID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePost(post.ID)
	}
	s.invalidatePost(post.Slug)
	if s.revisions != nil {
		if err := s.revisions.Remove(post.ID); err != nil {
			log.Printf(`{"event":"revisions_remove_failed","post_id":"%s","error":"%s"}`, post.ID, err)
		}
	}
	return nil
}

// GetPostDetail returns the post with its nested comment forest. Drafts
// are visible only to their author and admins; everyone else gets the
// same 404 as an unknown slug. Published detail payloads are served
// cache-aside; comment and post mutations invalidate the entry, so a
// refetch is what surfaces new comments.
func (s *Service) GetPostDetail(ctx context.Context, viewer *Session, slug string) (json.RawMessage, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if post.Status != store.PostStatusPublished {
		if viewer == nil || (post.AuthorID != viewer.UserID && rbac.Normalize(viewer.Role) != rbac.RoleAdmin) {
			return nil, sql.ErrNoRows
		}
		return s.buildPostDetail(ctx, post)
	}

	if s.cache != nil {
		if cached, err := s.cache.GetPost(ctx, slug); err == nil && cached != nil {
			return cached, nil
		}
	}

	payload, err := s.buildPostDetail(ctx, post)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetPost(ctx, slug, payload)
	}
	return payload, nil
}

func (s *Service) buildPostDetail(ctx context.Context, post store.Post) (json.RawMessage, error) {
	rows, err := s.store.ListCommentsByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	forest := commenttree.Build(treeComments(rows))

	payload := postPayload(post)
	payload["content"] = post.Content
	payload["comments"] = forest
	payload["commentCount"] = commenttree.Count(forest)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

func (s *Service) ListPublicPosts(ctx context.Context, q listing.Query) (map[string]any, error) {
	q = q.Normalize()
	posts, total, err := s.store.ListPosts(ctx, store.PostFilter{
		Search: q.Search,
		Tags:   q.Tags,
		Status: store.PostStatusPublished,
		Oldest: q.Sort == listing.SortOldest,
		Limit:  q.Limit(),
		Offset: q.Offset(),
	})
	if err != nil {
		return nil, err
	}
	return s.listingPayload(ctx, posts, total, q)
}

// ListManagedPosts is the dashboard listing: any status, scoped to the
// caller's own posts unless they are an admin.
func (s *Service) ListManagedPosts(ctx context.Context, session Session, q listing.Query) (map[string]any, error) {
	q = q.Normalize()
	filter := store.PostFilter{
		Search: q.Search,
		Tags:   q.Tags,
		Oldest: q.Sort == listing.SortOldest,
		Limit:  q.Limit(),
		Offset: q.Offset(),
	}
	if rbac.Normalize(session.Role) != rbac.RoleAdmin {
		filter.AuthorID = session.UserID
	}
	posts, total, err := s.store.ListPosts(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.listingPayload(ctx, posts, total, q)
}

func (s *Service) PostHistory(ctx context.Context, session Session, slug string) ([]revisions.CommitInfo, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != session.UserID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if s.revisions == nil {
		return []revisions.CommitInfo{}, nil
	}
	return s.revisions.History(post.ID, 50)
}

// PostRevision returns the content snapshot stored at one history
// entry, under the same access rules as the history itself.
func (s *Service) PostRevision(ctx context.Context, session Session, slug, hash string) (revisions.Content, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return revisions.Content{}, err
	}
	if post.AuthorID != session.UserID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return revisions.Content{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if s.revisions == nil {
		return revisions.Content{}, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	content, err := s.revisions.ContentAt(post.ID, hash)
	if err != nil {
		return revisions.Content{}, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return content, nil
}

func (s *Service) ExportPost(ctx context.Context, viewer *Session, slug string, format export.Format, includeComments bool) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if post.Status != store.PostStatusPublished {
		if viewer == nil || !rbac.CanResource(rbac.Normalize(viewer.Role), rbac.PermEditOwnPosts, rbac.PermEditAllPosts, post.AuthorID == viewer.UserID) {
			return nil, sql.ErrNoRows
		}
	}

	var comments []export.Comment
	if includeComments {
		rows, err := s.store.ListCommentsByPost(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		comments = exportComments(commenttree.Build(treeComments(rows)))
	}

	tagNames := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	return s.export.Export(export.Request{Slug: post.Slug, Format: format, IncludeComments: includeComments}, export.Post{
		Title:     post.Title,
		Excerpt:   post.Excerpt,
		Content:   post.Content,
		Author:    post.AuthorName,
		Tags:      tagNames,
		UpdatedAt: post.UpdatedAt,
	}, comments)
}

// Comments

func (s *Service) CreateComment(ctx context.Context, session Session, input CommentInput) (*commenttree.Comment, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Comment content is required", nil)
	}
	post, err := s.store.GetPostByID(ctx, input.PostID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
		}
		return nil, err
	}

	var parent *store.Comment
	if input.ParentID != nil && *input.ParentID != "" {
		row, err := s.store.GetComment(ctx, *input.ParentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Parent comment not found", nil)
			}
			return nil, err
		}
		if row.PostID != post.ID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Parent comment belongs to another post", nil)
		}
		depth, err := s.store.CommentDepth(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		if depth >= commenttree.MaxDepth {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				fmt.Sprintf("Replies are limited to %d levels", commenttree.MaxDepth), nil)
		}
		parent = &row
	}

	comment := store.Comment{
		ID:       util.NewID("cmt"),
		Content:  content,
		AuthorID: session.UserID,
		PostID:   post.ID,
	}
	if parent != nil {
		comment.ParentID = &parent.ID
	}
	created, err := s.store.InsertComment(ctx, comment)
	if err != nil {
		return nil, err
	}

	s.invalidatePost(post.Slug)
	s.notifyComment(post, parent, created)

	node := treeComment(created)
	return &node, nil
}

func (s *Service) UpdateComment(ctx context.Context, session Session, id, content string) (*commenttree.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Comment content is required", nil)
	}
	existing, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rbac.CanResource(rbac.Normalize(session.Role), rbac.PermEditOwnComments, rbac.PermEditAllComments, existing.AuthorID == session.UserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot edit this comment", nil)
	}

	updated, err := s.store.UpdateCommentContent(ctx, id, content)
	if err != nil {
		return nil, err
	}
	s.invalidateCommentPost(ctx, updated.PostID)

	node := treeComment(updated)
	return &node, nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, id string) error {
	existing, err := s.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.CanResource(rbac.Normalize(session.Role), rbac.PermDeleteOwnComments, rbac.PermDeleteAllComments, existing.AuthorID == session.UserID) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "You cannot delete this comment", nil)
	}
	if err := s.store.DeleteComment(ctx, id); err != nil {
		return err
	}
	s.invalidateCommentPost(ctx, existing.PostID)
	return nil
}

// Tags

func (s *Service) ListTags(ctx context.Context) ([]map[string]any, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		items = append(items, map[string]any{"id": tag.ID, "name": tag.Name, "slug": tag.Slug})
	}
	return items, nil
}

// Search

func (s *Service) SearchPosts(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// Users

func (s *Service) ListUsers(ctx context.Context, filter store.UserFilter) (map[string]any, error) {
	if filter.Limit <= 0 {
		filter.Limit = listing.DefaultPageSize
	}
	users, total, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, userPayload(user))
	}
	return map[string]any{"users": items, "total": total}, nil
}

// UpdateUser applies a profile update. Non-admins touch only their own
// profile; an admin may edit any non-admin user. Role changes are admin
// only, never on themselves and never on another admin.
func (s *Service) UpdateUser(ctx context.Context, session Session, id string, input UserUpdateInput) (map[string]any, error) {
	actorIsAdmin := rbac.Normalize(session.Role) == rbac.RoleAdmin
	if id != session.UserID && !actorIsAdmin {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot edit this user", nil)
	}

	target, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rbac.Normalize(target.Role) == rbac.RoleAdmin && target.ID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot edit another admin", nil)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 2 {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Name must be at least 2 characters", nil)
		}
		target.Name = name
	}
	if input.Avatar != nil {
		target.Avatar = strings.TrimSpace(*input.Avatar)
	}

	target.PasswordHash = ""
	if input.Password != nil {
		if len(*input.Password) < 6 {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Password must be at least 6 characters", nil)
		}
		hash, err := authpw.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		target.PasswordHash = hash
	}

	if input.Role != nil && *input.Role != target.Role {
		if !actorIsAdmin {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only admins can change roles", nil)
		}
		if target.ID == session.UserID {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot change your own role", nil)
		}
		switch rbac.Role(*input.Role) {
		case rbac.RoleUser, rbac.RoleEditor, rbac.RoleAdmin:
			target.Role = *input.Role
		default:
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown role", nil)
		}
	}

	updated, err := s.store.UpdateUser(ctx, target)
	if err != nil {
		return nil, err
	}
	return userPayload(updated), nil
}

func (s *Service) DeleteUser(ctx context.Context, session Session, id string) error {
	if id == session.UserID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "You cannot delete your own account", nil)
	}
	return s.store.DeleteUser(ctx, id)
}

// Media

func (s *Service) UploadImage(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	if s.media == nil {
		return "", domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)
	}
	url, err := s.media.Upload(ctx, filename, contentType, r, size)
	if err != nil {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return url, nil
}

// internals

// applyPostInput validates the shared create/update fields and writes
// them onto post, returning the normalized tag names.
func (s *Service) applyPostInput(ctx context.Context, post *store.Post, input PostInput) ([]string, error) {
	title := strings.TrimSpace(input.Title)
	if len(title) < 3 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Title must be at least 3 characters", nil)
	}
	content := strings.TrimSpace(input.Content)
	if len(content) < 10 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content must be at least 10 characters", nil)
	}

	status := strings.ToUpper(strings.TrimSpace(input.Status))
	if status == "" {
		status = store.PostStatusDraft
	}
	if status != store.PostStatusDraft && status != store.PostStatusPublished {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Status must be DRAFT or PUBLISHED", nil)
	}

	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if slug == "" {
		slug = util.Slugify(title)
	}
	if !util.ValidSlug(slug) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Slug may contain only letters, digits, and hyphens", nil)
	}
	taken, err := s.store.SlugExists(ctx, slug, post.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Slug is already in use", map[string]any{"slug": slug})
	}

	post.Title = title
	post.Slug = slug
	post.Content = content
	post.Excerpt = strings.TrimSpace(input.Excerpt)
	post.Image = strings.TrimSpace(input.Image)
	post.Status = status

	return normalizeTagNames(input.Tags), nil
}

func (s *Service) ensureTags(ctx context.Context, names []string) ([]string, []store.Tag, error) {
	ids := make([]string, 0, len(names))
	tags := make([]store.Tag, 0, len(names))
	for _, name := range names {
		tag, err := s.store.EnsureTag(ctx, util.NewID("tag"), name)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, tag.ID)
		tags = append(tags, tag)
	}
	return ids, tags, nil
}

func normalizeTagNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func (s *Service) recordRevision(post store.Post, author, message string) {
	if s.revisions == nil {
		return
	}
	tagNames := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	_, err := s.revisions.Save(post.ID, revisions.Content{
		Title:   post.Title,
		Slug:    post.Slug,
		Excerpt: post.Excerpt,
		Image:   post.Image,
		Status:  post.Status,
		Tags:    tagNames,
		Content: post.Content,
	}, author, message)
	if err != nil {
		log.Printf(`{"event":"revision_save_failed","post_id":"%s","error":"%s"}`, post.ID, err)
	}
}

func (s *Service) indexPost(post store.Post) {
	if s.search == nil {
		return
	}
	tagNames := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	s.search.IndexPost(search.PostRecord{
		ID:      post.ID,
		Title:   post.Title,
		Slug:    post.Slug,
		Excerpt: post.Excerpt,
		Content: post.Content,
		Image:   post.Image,
		Tags:    tagNames,
		Status:  post.Status,
	})
}

func (s *Service) invalidatePost(slug string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.InvalidatePost(ctx, slug); err != nil {
		log.Printf(`{"event":"cache_invalidate_failed","slug":"%s","error":"%s"}`, slug, err)
	}
}

func (s *Service) invalidateCommentPost(ctx context.Context, postID string) {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		return
	}
	s.invalidatePost(post.Slug)
}

// notifyComment mails the parent comment's author (or the post author
// for a root comment) in the background. Commenters are never notified
// about their own comments, and failures only get logged.
func (s *Service) notifyComment(post store.Post, parent *store.Comment, created store.Comment) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	recipient := post.AuthorEmail
	recipientName := post.AuthorName
	if parent != nil {
		recipient = parent.AuthorEmail
		recipientName = parent.AuthorName
	}
	if recipient == "" || created.AuthorID == post.AuthorID && parent == nil {
		return
	}
	if parent != nil && created.AuthorID == parent.AuthorID {
		return
	}

	data := email.ReplyNotificationData{
		RecipientName:  recipientName,
		CommenterName:  created.AuthorName,
		PostTitle:      post.Title,
		CommentExcerpt: commentExcerpt(created.Content),
		PostURL:        strings.TrimRight(s.cfg.PublicURL, "/") + "/posts/" + post.Slug,
	}
	go func() {
		if err := s.email.SendReplyNotification(recipient, data); err != nil {
			log.Printf(`{"event":"comment_notification_failed","comment_id":"%s","error":"%s"}`, created.ID, err)
		}
	}()
}

// commentExcerpt shortens comment content for the notification email,
// backing up to a rune boundary so multi-byte characters stay intact.
func commentExcerpt(content string) string {
	const maxBytes = 200
	if len(content) <= maxBytes {
		return content
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "…"
}

// payload helpers

func treeComment(row store.Comment) commenttree.Comment {
	return commenttree.Comment{
		ID:       row.ID,
		Content:  row.Content,
		AuthorID: row.AuthorID,
		PostID:   row.PostID,
		ParentID: row.ParentID,
		Author: commenttree.Author{
			ID:     row.AuthorID,
			Name:   row.AuthorName,
			Email:  row.AuthorEmail,
			Avatar: row.AuthorAvatar,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Replies:   []*commenttree.Comment{},
	}
}

func treeComments(rows []store.Comment) []commenttree.Comment {
	out := make([]commenttree.Comment, 0, len(rows))
	for _, row := range rows {
		out = append(out, treeComment(row))
	}
	return out
}

func exportComments(forest []*commenttree.Comment) []export.Comment {
	out := make([]export.Comment, 0, len(forest))
	for _, node := range forest {
		name := node.Author.Name
		if name == "" {
			name = node.Author.Email
		}
		out = append(out, export.Comment{
			Author:    name,
			Content:   node.Content,
			CreatedAt: node.CreatedAt,
			Replies:   exportComments(node.Replies),
		})
	}
	return out
}

func postPayload(post store.Post) map[string]any {
	tags := make([]map[string]any, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tags = append(tags, map[string]any{"id": tag.ID, "name": tag.Name, "slug": tag.Slug})
	}
	return map[string]any{
		"id":        post.ID,
		"title":     post.Title,
		"slug":      post.Slug,
		"excerpt":   post.Excerpt,
		"image":     post.Image,
		"status":    post.Status,
		"tags":      tags,
		"author":    map[string]any{"id": post.AuthorID, "name": post.AuthorName},
		"createdAt": post.CreatedAt,
		"updatedAt": post.UpdatedAt,
	}
}

func (s *Service) listingPayload(ctx context.Context, posts []store.Post, total int, q listing.Query) (map[string]any, error) {
	items := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		item := postPayload(post)
		count, err := s.store.CountCommentsByPost(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		item["commentCount"] = count
		items = append(items, item)
	}
	return map[string]any{
		"posts":      items,
		"page":       q.Page,
		"pageSize":   q.PageSize,
		"total":      total,
		"totalPages": q.TotalPages(total),
	}, nil
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"avatar":    user.Avatar,
		"role":      user.Role,
		"createdAt": user.CreatedAt,
	}
}
