package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/dbsahdlks/INgress/internal/logger"
)

var (
	ErrSessionNotFound = errors.New("bridge: session not found")
	ErrTooManySessions = errors.New("bridge: too many sessions")
)

// DefaultMaxSessions：单进程会话上限
const DefaultMaxSessions = 64

// Forgetter：会话移除时释放呈现方持有的文档（可选实现）
type Forgetter interface {
	Forget(sessionID string)
}

// 文档注释：会话注册表
// 背景：按 uuid 管理会话；会话之间互不共享状态，只共享呈现方与日志记录方。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	max      int
}

func NewRegistry(opts Options, max int) *Registry {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Registry{sessions: make(map[string]*Session), opts: opts, max: max}
}

// Create：创建会话并开始首个周期
// 约束：prepare 在首个 Start 之前以新 id 调用（可为 nil），用于设置会话级呈现参数。
func (r *Registry) Create(ctx context.Context, diagnostic bool, prepare func(id string)) (*Session, Update, error) {
	id := uuid.NewString()
	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		return nil, Update{}, ErrTooManySessions
	}
	s := NewSession(id, r.opts)
	r.sessions[id] = s
	r.mu.Unlock()
	if prepare != nil {
		prepare(id)
	}
	u, err := s.Start(ctx, diagnostic)
	if err != nil {
		_ = r.Remove(context.Background(), id)
		return nil, Update{}, err
	}
	logger.L().Info("session_created", "session", id, "diagnostic", diagnostic)
	return s, u, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if f, ok := r.opts.Presenter.(Forgetter); ok {
		f.Forget(id)
	}
	logger.L().Info("session_removed", "session", id)
	return s.Close(ctx)
}

// CloseAll：关闭所有会话（进程退出时调用）
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	var errs []error
	for _, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
