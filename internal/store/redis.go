package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Project is a persisted project record. The cache is a convenience, not a
// source of truth: every read falls back to defaults when the data is
// missing or malformed, and writes are best-effort.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	keyProjects      = "console:projects"
	keyActiveProject = "console:active_project"
	keySessionPrefix = "console:project_session:"
)

// Store caches the project list, the active project id, and the
// project to session mapping in redis. A nil *Store is valid and turns
// every operation into a no-op, so the console runs without persistence
// when no redis URL is configured.
type Store struct {
	client *redis.Client
	logf   func(format string, args ...any)
}

func Open(redisURL string, logf func(format string, args ...any)) (*Store, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Store{client: client, logf: logf}, nil
}

// Projects returns the cached project list, or nil when absent/malformed.
func (s *Store) Projects(ctx context.Context) []Project {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := s.client.Get(ctx, keyProjects).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logf("store: read projects: %v", err)
		}
		return nil
	}
	var out []Project
	if err := json.Unmarshal(data, &out); err != nil {
		s.logf("store: malformed projects cache, ignoring: %v", err)
		return nil
	}
	return out
}

func (s *Store) SaveProjects(ctx context.Context, projects []Project) {
	if s == nil || s.client == nil {
		return
	}
	data, err := json.Marshal(projects)
	if err != nil {
		s.logf("store: encode projects: %v", err)
		return
	}
	if err := s.client.Set(ctx, keyProjects, data, 0).Err(); err != nil {
		s.logf("store: write projects: %v", err)
	}
}

func (s *Store) ActiveProject(ctx context.Context) string {
	if s == nil || s.client == nil {
		return ""
	}
	id, err := s.client.Get(ctx, keyActiveProject).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logf("store: read active project: %v", err)
		}
		return ""
	}
	return strings.TrimSpace(id)
}

func (s *Store) SessionForProject(ctx context.Context, projectID string) string {
	if s == nil || s.client == nil {
		return ""
	}
	id := strings.TrimSpace(projectID)
	if id == "" {
		return ""
	}
	sessionID, err := s.client.Get(ctx, keySessionPrefix+id).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logf("store: read session for project %s: %v", id, err)
		}
		return ""
	}
	return strings.TrimSpace(sessionID)
}

// SaveActiveSession records both the active project and its session id in
// one round trip.
func (s *Store) SaveActiveSession(ctx context.Context, projectID, sessionID string) {
	if s == nil || s.client == nil {
		return
	}
	pid := strings.TrimSpace(projectID)
	sid := strings.TrimSpace(sessionID)
	if pid == "" || sid == "" {
		return
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, keyActiveProject, pid, 0)
	pipe.Set(ctx, keySessionPrefix+pid, sid, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logf("store: write active session: %v", err)
	}
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
