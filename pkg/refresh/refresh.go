// Package refresh implements C12: a background scheduler that keeps
// OAuth tokens fresh. It mirrors the background-refresh/monitoring shape
// of toolhive's pkg/auth/monitored_token_source.go — a cancellable loop
// owned by the service, timer-driven rather than busy-polling — but
// generalized from one workload's single TokenSource to a multi-
// provider, multi-user scheduler with a priority queue of immediate
// requests, an explicit concurrency cap, and exponential backoff.
package refresh

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/secretval"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnellog"
)

// maxBackoff caps the exponential retry delay, per spec.md §4.14/§8.
const maxBackoff = time.Hour

// RefreshResult is what a RefreshFunc returns on success.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string // empty means "no rotation, keep the old one"
	ExpiresAt    *time.Time
}

// RefreshFunc performs the actual token-endpoint refresh leg. It is
// injected so this package has no hard dependency on oauthcore's HTTP
// client — callers wire oauthcore.Client.RefreshToken (or a test double)
// in.
type RefreshFunc func(ctx context.Context, provider, refreshToken string, resources []string) (*RefreshResult, error)

// taskKey identifies one (provider, user) refresh slot.
type taskKey struct {
	provider string
	userID   string
}

// RefreshTask tracks one (provider, user)'s refresh schedule.
type RefreshTask struct {
	Provider       string
	UserID         string
	NextRefreshAt  time.Time
	RetryCount     int
	LastAttempt    *time.Time
	RefreshInterval time.Duration
	Priority       int
	CreatedAt      time.Time
	LastError      string
}

// Due reports whether the task should run now.
func (t RefreshTask) Due(now time.Time) bool {
	return !now.Before(t.NextRefreshAt)
}

// immediateRequest is one entry in the ad-hoc priority queue.
type immediateRequest struct {
	key      taskKey
	priority int
	index    int
}

type requestQueue []*immediateRequest

func (q requestQueue) Len() int            { return len(q) }
func (q requestQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q requestQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index, q[j].index = i, j }
func (q *requestQueue) Push(x any) {
	item := x.(*immediateRequest)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Config configures a Service.
type Config struct {
	RefreshThreshold            time.Duration // how far ahead of expiry to refresh
	BackgroundCheckInterval     time.Duration
	ConcurrentRefreshLimit      int
	MaxRetryAttempts            int
	MaxRetryAge                 time.Duration
	BaseRetryDelay              time.Duration
}

func (c *Config) applyDefaults() {
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = 15 * time.Minute
	}
	if c.BackgroundCheckInterval <= 0 {
		c.BackgroundCheckInterval = time.Minute
	}
	if c.ConcurrentRefreshLimit <= 0 {
		c.ConcurrentRefreshLimit = 4
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 5
	}
	if c.MaxRetryAge <= 0 {
		c.MaxRetryAge = 24 * time.Hour
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = 5 * time.Second
	}
}

// Service is the background token-refresh scheduler.
type Service struct {
	cfg   Config
	store tokenstore.Store
	uniqueUserID string
	refresh RefreshFunc

	mu    sync.Mutex
	tasks map[taskKey]*RefreshTask
	queue requestQueue

	sem chan struct{} // concurrency-limiting token bucket, one slot per in-flight refresh

	active map[taskKey]bool
}

// New builds a refresh Service. uniqueUserID salts every token-store key,
// matching tokenstore.Key's convention.
func New(store tokenstore.Store, uniqueUserID string, refreshFn RefreshFunc, cfg Config) *Service {
	cfg.applyDefaults()
	s := &Service{
		cfg:          cfg,
		store:        store,
		uniqueUserID: uniqueUserID,
		refresh:      refreshFn,
		tasks:        make(map[taskKey]*RefreshTask),
		sem:          make(chan struct{}, cfg.ConcurrentRefreshLimit),
		active:       make(map[taskKey]bool),
	}
	heap.Init(&s.queue)
	return s
}

// Track registers a (provider, user) pair for background refresh,
// computing the next_refresh_at as expiresAt minus the refresh threshold,
// or now when expiresAt is nil. The token store is not consulted.
func (s *Service) Track(provider, userID string, expiresAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskKey{provider, userID}
	next := time.Now()
	if expiresAt != nil {
		next = expiresAt.Add(-s.cfg.RefreshThreshold)
	}
	s.tasks[key] = &RefreshTask{
		Provider:      provider,
		UserID:        userID,
		NextRefreshAt: next,
		CreatedAt:     time.Now(),
	}
}

// RequestImmediateRefresh enqueues a priority-0 request, bypassing the
// due-time gate entirely.
func (s *Service) RequestImmediateRefresh(provider, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.queue, &immediateRequest{key: taskKey{provider, userID}, priority: 0})
}

// RunCycle executes one scheduling cycle: cull stale tasks, collect due
// tasks and spawn each under the concurrency cap (overflow queues),
// then drain the ad-hoc queue while capacity remains. Exported so tests
// (and callers that want manual control) can drive it directly instead
// of waiting on the background ticker.
func (s *Service) RunCycle(ctx context.Context) {
	s.cull()

	due := s.collectDue()
	for _, key := range due {
		s.trySpawn(ctx, key)
	}

	s.drainQueue(ctx)
}

func (s *Service) cull() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for key, task := range s.tasks {
		if task.RetryCount >= s.cfg.MaxRetryAttempts {
			delete(s.tasks, key)
			continue
		}
		if now.Sub(task.CreatedAt) > s.cfg.MaxRetryAge {
			delete(s.tasks, key)
		}
	}
}

func (s *Service) collectDue() []taskKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var due []taskKey
	for key, task := range s.tasks {
		if task.Due(now) && !s.active[key] {
			due = append(due, key)
		}
	}
	return due
}

// trySpawn attempts to acquire a concurrency slot for key. If none is
// free, the refresh is enqueued (priority 1, below immediate requests)
// rather than spawned, so starting N+1 due tasks against a cap of N
// leaves exactly one queued and zero spawned over the cap.
func (s *Service) trySpawn(ctx context.Context, key taskKey) {
	select {
	case s.sem <- struct{}{}:
		s.mu.Lock()
		s.active[key] = true
		s.mu.Unlock()
		go s.runRefresh(ctx, key)
	default:
		s.mu.Lock()
		heap.Push(&s.queue, &immediateRequest{key: key, priority: 1})
		s.mu.Unlock()
	}
}

func (s *Service) drainQueue(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}
		select {
		case s.sem <- struct{}{}:
			item := heap.Pop(&s.queue).(*immediateRequest)
			s.active[item.key] = true
			s.mu.Unlock()
			go s.runRefresh(ctx, item.key)
		default:
			s.mu.Unlock()
			return
		}
	}
}

func (s *Service) runRefresh(ctx context.Context, key taskKey) {
	defer func() {
		<-s.sem
		s.mu.Lock()
		delete(s.active, key)
		s.mu.Unlock()
	}()

	tokenKey := tokenstore.Key(s.uniqueUserID, key.provider, key.userID)
	token, ok, err := s.store.RetrieveToken(tokenKey)
	if err != nil || !ok || token == nil {
		return
	}
	if token.RefreshToken == nil || token.RefreshToken.IsEmpty() {
		return
	}

	refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	result, err := s.refresh(refreshCtx, key.provider, token.RefreshToken.Expose(), nil)
	cancel()

	now := time.Now()
	s.mu.Lock()
	task, exists := s.tasks[key]
	if !exists {
		task = &RefreshTask{Provider: key.provider, UserID: key.userID, CreatedAt: now}
		s.tasks[key] = task
	}
	task.LastAttempt = &now
	s.mu.Unlock()

	if err != nil {
		s.mu.Lock()
		task.RetryCount++
		task.LastError = err.Error()
		delay := backoffDelay(s.cfg.BaseRetryDelay, task.RetryCount)
		task.NextRefreshAt = now.Add(delay)
		s.mu.Unlock()
		tunnellog.Warnf("token refresh failed for %s/%s: %v", key.provider, key.userID, err)
		return
	}

	token.AccessToken = secretval.New(result.AccessToken)
	rotated := result.RefreshToken != "" && result.RefreshToken != token.RefreshToken.Expose()
	if result.RefreshToken != "" {
		rt := secretval.New(result.RefreshToken)
		token.RefreshToken = &rt
	}
	token.ExpiresAt = result.ExpiresAt
	token.LastRefreshed = &now

	if err := s.store.StoreToken(tokenKey, *token); err != nil {
		tunnellog.Warnf("failed to persist refreshed token for %s/%s: %v", key.provider, key.userID, err)
		return
	}
	if rotated {
		tunnellog.Infow("refresh token rotated", "provider", key.provider, "user", key.userID)
	}

	s.mu.Lock()
	task.RetryCount = 0
	task.LastError = ""
	next := now
	if result.ExpiresAt != nil {
		next = result.ExpiresAt.Add(-s.cfg.RefreshThreshold)
	}
	task.NextRefreshAt = next
	s.mu.Unlock()
}

// backoffDelay implements min(base * 2^(n-1), maxBackoff) for n >= 1.
func backoffDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount <= 0 {
		return base
	}
	d := base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Start launches the background ticker loop, returning a stop function.
func (s *Service) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(s.cfg.BackgroundCheckInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()

	return cancel
}

// Task returns a copy of the current task state for (provider, userID),
// for inspection/tests.
func (s *Service) Task(provider, userID string) (RefreshTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskKey{provider, userID}]
	if !ok {
		return RefreshTask{}, false
	}
	return *t, true
}

// QueueLen reports the ad-hoc queue's current length, for tests.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
