package memory

import (
	"context"
	"sync"

	"learnloop-service/internal/domain"
)

// PostStore is an in-memory implementation of app.PostStore.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]domain.Post
}

func NewPostStore(seed ...domain.Post) *PostStore {
	s := &PostStore{posts: make(map[string]domain.Post, len(seed))}
	for _, p := range seed {
		if p.Status == "" {
			p.Status = domain.PostActive
		}
		s.posts[p.ID] = p
	}
	return s
}

func (s *PostStore) Create(_ context.Context, post domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; ok {
		return domain.Errorf(domain.KindConflict, "post %s already exists", post.ID)
	}
	if post.Status == "" {
		post.Status = domain.PostActive
	}
	s.posts[post.ID] = post
	return nil
}

func (s *PostStore) Get(_ context.Context, id string) (domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return post, nil
}

func (s *PostStore) SetStatus(_ context.Context, id string, status domain.PostStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return domain.ErrPostNotFound
	}
	post.Status = status
	s.posts[id] = post
	return nil
}

func (s *PostStore) IncrementReportCount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return 0, domain.ErrPostNotFound
	}
	post.ReportCount++
	s.posts[id] = post
	return post.ReportCount, nil
}

// Remove deletes a post outright. The moderation workflow never does this;
// it exists so tests can simulate a post vanishing.
func (s *PostStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
}
