package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/dashboard-notifications/internal/model"
	"github.com/jwalitptl/dashboard-notifications/pkg/credential"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
	"github.com/jwalitptl/dashboard-notifications/pkg/metrics"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultFetchTimeout = 15 * time.Second

	// RefreshFailedMessage is shown alongside the last known feed when a
	// refresh cycle fails as a whole.
	RefreshFailedMessage = "Could not load notifications."

	refreshPublished = "published"
	refreshDiscarded = "discarded"
	refreshFailed    = "failed"
)

// DashboardFetcher returns dashboard records for a credential. It must
// not fail; outages degrade to an empty slice.
type DashboardFetcher interface {
	Fetch(ctx context.Context, token string) []model.DashboardNotification
}

// AlertFetcher returns raw alerts for a credential. It must not fail.
type AlertFetcher interface {
	Fetch(ctx context.Context, token string) []model.Alert
}

// Listener receives published states in publication order. A listener
// must not call Refresh or MarkRead on the service that invokes it.
type Listener func(model.FeedState)

type Config struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// Service aggregates the two notification sources into one feed and keeps
// it fresh while started.
//
// Every refresh takes a token from a monotonically increasing sequence. A
// result is applied only if the service is still in the session that
// issued it and no newer token has been applied already. MarkRead records
// the last issued token; refreshes at or below it cannot set the unread
// flag again.
//
// Publications are numbered under the state lock and delivered to
// listeners one at a time; a snapshot older than the last one delivered
// is dropped, so listeners always end on the current state.
type Service struct {
	dashboard DashboardFetcher
	alerts    AlertFetcher
	creds     credential.Store
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	newTicker TickerFunc
	now       func() time.Time

	mu        sync.Mutex
	state     model.FeedState
	issued    uint64
	applied   uint64
	readMark  uint64
	session   uint64
	active    bool
	ready     bool
	cancel    context.CancelFunc
	listeners []Listener
	pubSeq    uint64

	deliverMu sync.Mutex
	delivered uint64
}

type Option func(*Service)

// WithTicker replaces the polling ticker factory.
func WithTicker(f TickerFunc) Option {
	return func(s *Service) { s.newTicker = f }
}

// WithClock replaces the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	dashboard DashboardFetcher,
	alerts AlertFetcher,
	creds credential.Store,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if creds == nil {
		creds = credential.NewStatic("")
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Service{
		dashboard: dashboard,
		alerts:    alerts,
		creds:     creds,
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		newTicker: NewTicker,
		now:       time.Now,
		state:     initialState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func initialState() model.FeedState {
	return model.FeedState{
		Notifications: []model.Notification{},
		Loading:       true,
	}
}

// Start begins polling: one refresh immediately, then one per interval.
// Starting a started service does nothing. Cancelling ctx stops polling
// like Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.session++
	session := s.session
	s.ready = false
	s.state = initialState()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	ticker := s.newTicker(s.cfg.PollInterval)
	s.logger.Info("notification polling started", "interval", s.cfg.PollInterval.String())
	go s.run(runCtx, session, ticker)
}

func (s *Service) run(ctx context.Context, session uint64, ticker Ticker) {
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.endSession(session)
			return
		case <-ticker.C():
			s.Refresh(ctx)
		}
	}
}

// Stop halts polling. Refreshes still in flight are discarded and nothing
// is published afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.deactivateLocked()
	s.mu.Unlock()

	cancel()
	s.logger.Info("notification polling stopped")
}

func (s *Service) endSession(session uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.session == session {
		s.deactivateLocked()
	}
}

func (s *Service) deactivateLocked() {
	s.active = false
	s.session++
	s.cancel = nil
}

// Refresh fetches both sources and publishes the merged feed. It is safe
// to call at any time and never panics; the polling schedule is not
// affected. While stopped it returns the current state untouched.
func (s *Service) Refresh(ctx context.Context) model.FeedState {
	s.mu.Lock()
	if !s.active {
		st := s.state.Clone()
		s.mu.Unlock()
		return st
	}
	s.issued++
	token := s.issued
	session := s.session
	s.mu.Unlock()

	start := time.Now()
	res, err := s.collect(ctx)
	if s.metrics != nil {
		s.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}

	if ctx.Err() != nil {
		s.count(refreshDiscarded)
		s.logger.Debug("refresh abandoned", "token", token)
		return s.State()
	}

	published, seq, snapshot := s.apply(session, token, res, err)
	if !published {
		s.count(refreshDiscarded)
		s.logger.Debug("refresh result discarded", "token", token)
		return snapshot
	}

	if err != nil {
		s.count(refreshFailed)
		s.logger.Error(err, "notification refresh failed, keeping previous feed", "token", token)
	} else {
		s.count(refreshPublished)
		if s.metrics != nil {
			s.metrics.FeedSize.Set(float64(len(snapshot.Notifications)))
			s.metrics.FeedUnread.Set(boolGauge(snapshot.HasUnread))
		}
	}
	s.notify(seq, snapshot)
	return snapshot
}

type result struct {
	feed   []model.Notification
	unread bool
}

// collect runs one fetch-and-merge cycle. Any panic on the way is turned
// into an error.
func (s *Service) collect(ctx context.Context) (res result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()

	token, ok := s.creds.Get(ctx)
	if !ok {
		token = ""
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var (
		wg         sync.WaitGroup
		dashboard  []model.DashboardNotification
		alerts     []model.Alert
		dashPanic  interface{}
		alertPanic interface{}
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() { dashPanic = recover() }()
		dashboard = s.dashboard.Fetch(fetchCtx, token)
	}()
	go func() {
		defer wg.Done()
		defer func() { alertPanic = recover() }()
		alerts = s.alerts.Fetch(fetchCtx, token)
	}()
	wg.Wait()

	if dashPanic != nil {
		return result{}, fmt.Errorf("dashboard fetch panicked: %v", dashPanic)
	}
	if alertPanic != nil {
		return result{}, fmt.Errorf("alerts fetch panicked: %v", alertPanic)
	}

	// Unread follows what the sources returned, before records are
	// filtered out of the feed.
	unread := HasUnread(dashboard, alerts)

	dashboard, droppedDash := validDashboard(dashboard)
	alerts, droppedAlerts := validAlerts(alerts)
	if droppedDash > 0 || droppedAlerts > 0 {
		s.logger.Warn("dropped invalid notification records",
			"dashboard", droppedDash, "alerts", droppedAlerts)
	}

	feed, duplicates := merge(dashboard, alerts)
	if duplicates > 0 {
		s.logger.Warn("dropped duplicate notification ids", "count", duplicates)
	}

	return result{feed: feed, unread: unread}, nil
}

// apply is the single writer for refresh outcomes.
// It returns the publication number of the new state.
func (s *Service) apply(session, token uint64, res result, err error) (bool, uint64, model.FeedState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || session != s.session || token < s.applied {
		return false, 0, s.state.Clone()
	}
	s.applied = token
	s.pubSeq++

	if err != nil {
		s.state.Loading = false
		s.state.Error = RefreshFailedMessage
		return true, s.pubSeq, s.state.Clone()
	}

	s.state = model.FeedState{
		Notifications: res.feed,
		Loading:       false,
		Error:         "",
		HasUnread:     res.unread && token > s.readMark,
		UpdatedAt:     s.now(),
	}
	s.ready = true
	return true, s.pubSeq, s.state.Clone()
}

// MarkRead clears the unread flag without refetching. Only a refresh
// issued after this call can raise the flag again.
func (s *Service) MarkRead() model.FeedState {
	s.mu.Lock()
	if !s.active {
		st := s.state.Clone()
		s.mu.Unlock()
		return st
	}
	s.readMark = s.issued
	changed := s.state.HasUnread
	s.state.HasUnread = false
	if changed {
		s.pubSeq++
	}
	seq := s.pubSeq
	snapshot := s.state.Clone()
	s.mu.Unlock()

	if changed {
		if s.metrics != nil {
			s.metrics.FeedUnread.Set(0)
		}
		s.notify(seq, snapshot)
	}
	return snapshot
}

// State returns a copy of the current feed state.
func (s *Service) State() model.FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Active reports whether polling is running.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Ready reports whether the current session has published a feed.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.ready
}

// Subscribe registers l for every subsequent publication.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// notify delivers publication seq unless a newer one already went out.
func (s *Service) notify(seq uint64, st model.FeedState) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if seq <= s.delivered {
		return
	}
	s.delivered = seq

	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		s.safeCall(l, st.Clone())
	}
}

func (s *Service) safeCall(l Listener, st model.FeedState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Errorf("%v", r), "notification listener panicked")
		}
	}()
	l(st)
}

func (s *Service) count(status string) {
	if s.metrics != nil {
		s.metrics.RefreshTotal.WithLabelValues(status).Inc()
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
