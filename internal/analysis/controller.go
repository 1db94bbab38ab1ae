package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/spacesedan/tweetpulse/internal/clients"
	"github.com/spacesedan/tweetpulse/internal/models"
	"github.com/spacesedan/tweetpulse/internal/sentiment"
	"github.com/spacesedan/tweetpulse/internal/session"
)

const SAVE_TIMEOUT = 5 * time.Second

// Fetcher is satisfied by clients.AnalyzerClient.
type Fetcher interface {
	FetchSentiment(ctx context.Context, username string) (*models.SentimentResult, error)
}

var _ Fetcher = (*clients.AnalyzerClient)(nil)

type Options struct {
	Fallback      FallbackPolicy
	InputErrorTTL time.Duration
	JitterDelay   time.Duration
}

type inflightRequest struct {
	seq    uint64
	cancel context.CancelFunc
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Controller owns every state transition of both screens. Background work is
// tagged with the session's sequence number and dropped if a newer request
// has been issued since.
type Controller struct {
	fetcher Fetcher
	store   session.Store
	opts    Options

	now func() time.Time
	rnd func() float64

	// mu guards inflight and locks only. Session reads and writes happen
	// under the per-session lock from lockSession.
	mu       sync.Mutex
	inflight map[string]inflightRequest
	locks    map[string]*sessionLock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(fetcher Fetcher, store session.Store, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		fetcher:  fetcher,
		store:    store,
		opts:     opts,
		now:      time.Now,
		rnd:      rand.Float64,
		inflight: make(map[string]inflightRequest),
		locks:    make(map[string]*sessionLock),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Session returns the session for id, or a fresh one if none is stored.
// Expired input errors are already resolved.
func (c *Controller) Session(ctx context.Context, id string) (*models.Session, error) {
	unlock := c.lockSession(id)
	defer unlock()
	return c.load(ctx, id)
}

// Trigger starts an analysis for username and returns the state the screen
// moved to. An empty username only produces an input error; a request that
// is already running keeps running and the error shows on top of it.
func (c *Controller) Trigger(ctx context.Context, id, username string) (models.AnalysisState, error) {
	username = strings.TrimSpace(username)

	unlock := c.lockSession(id)
	defer unlock()

	s, err := c.load(ctx, id)
	if err != nil {
		return models.AnalysisState{}, err
	}
	prev := s.Analysis

	if username == "" {
		expires := c.now().Add(c.opts.InputErrorTTL)
		if prev.IsLoading() {
			s.Analysis = prev.WithNotice(MSG_EMPTY_USERNAME, &expires)
		} else {
			s.Analysis = models.FailedAnalysis(prev.Seq, prev.Username, models.FailureInput, MSG_EMPTY_USERNAME, prev, &expires)
		}
		return s.Analysis, c.save(ctx, s)
	}

	return c.begin(ctx, s, username, func(rctx context.Context, seq uint64) {
		c.runFetch(rctx, id, seq, username)
	})
}

// TriggerSample shows the fixed sample distribution for username after the
// fallback delay. An empty username uses the sample default.
func (c *Controller) TriggerSample(ctx context.Context, id, username string) (models.AnalysisState, error) {
	unlock := c.lockSession(id)
	defer unlock()

	s, err := c.load(ctx, id)
	if err != nil {
		return models.AnalysisState{}, err
	}
	username = sentiment.SampleResult(strings.TrimSpace(username)).Username

	return c.begin(ctx, s, username, func(rctx context.Context, seq uint64) {
		c.runSample(rctx, id, seq, username)
	})
}

// Reset returns the analysis screen to Idle and abandons any pending request.
func (c *Controller) Reset(ctx context.Context, id string) (models.AnalysisState, error) {
	unlock := c.lockSession(id)
	defer unlock()

	s, err := c.load(ctx, id)
	if err != nil {
		return models.AnalysisState{}, err
	}
	seq := s.NextSeq()
	c.supersede(id)

	s.Analysis = models.IdleAnalysis()
	s.Analysis.Seq = seq
	return s.Analysis, c.save(ctx, s)
}

// Analyze runs one fetch synchronously without touching any session. The
// fallback delay is skipped.
func (c *Controller) Analyze(ctx context.Context, username string) (models.AnalysisState, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.AnalysisState{}, &InputError{Message: MSG_EMPTY_USERNAME}
	}

	result, err := c.fetcher.FetchSentiment(ctx, username)
	if err == nil {
		return models.LoadedAnalysis(0, username, result, models.SourceLive, ""), nil
	}
	if clients.IsCanceled(err) {
		return models.AnalysisState{}, err
	}

	slog.Warn("[Controller] Fetch failed",
		slog.String("username", username),
		slog.Bool("fallback", c.opts.Fallback.Enabled),
		slog.String("error", err.Error()))
	return c.opts.Fallback.OnFailure(0, username, models.IdleAnalysis()), nil
}

// Wait blocks until all background work has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels all background work and waits for it.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

// begin issues a new sequence number, cancels any pending request, stores the
// Loading state and starts run in the background. The session lock must be
// held.
func (c *Controller) begin(ctx context.Context, s *models.Session, username string, run func(context.Context, uint64)) (models.AnalysisState, error) {
	seq := s.NextSeq()
	c.supersede(s.ID)

	s.Analysis = models.LoadingAnalysis(seq, username, s.Analysis)
	if err := c.save(ctx, s); err != nil {
		return models.AnalysisState{}, err
	}

	rctx, cancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	c.inflight[s.ID] = inflightRequest{seq: seq, cancel: cancel}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		run(rctx, seq)
	}()

	slog.Debug("[Controller] Request started",
		slog.String("session", s.ID),
		slog.Uint64("seq", seq),
		slog.String("username", username))
	return s.Analysis, nil
}

// supersede cancels the pending request of a session.
func (c *Controller) supersede(id string) {
	c.mu.Lock()
	req, ok := c.inflight[id]
	delete(c.inflight, id)
	c.mu.Unlock()

	if ok {
		req.cancel()
		slog.Debug("[Controller] Superseded pending request",
			slog.String("session", id),
			slog.Uint64("seq", req.seq))
	}
}

func (c *Controller) runFetch(ctx context.Context, id string, seq uint64, username string) {
	result, err := c.fetcher.FetchSentiment(ctx, username)
	if err == nil {
		c.complete(id, seq, func(models.AnalysisState) models.AnalysisState {
			return models.LoadedAnalysis(seq, username, result, models.SourceLive, "")
		})
		return
	}

	if ctx.Err() != nil || clients.IsCanceled(err) {
		return
	}

	slog.Warn("[Controller] Fetch failed",
		slog.String("session", id),
		slog.Uint64("seq", seq),
		slog.Bool("fallback", c.opts.Fallback.Enabled),
		slog.String("error", err.Error()))

	if c.opts.Fallback.Enabled && !sleep(ctx, c.opts.Fallback.Delay) {
		return
	}
	c.complete(id, seq, func(prev models.AnalysisState) models.AnalysisState {
		return c.opts.Fallback.OnFailure(seq, username, prev)
	})
}

func (c *Controller) runSample(ctx context.Context, id string, seq uint64, username string) {
	if !sleep(ctx, c.opts.Fallback.Delay) {
		return
	}
	c.complete(id, seq, func(models.AnalysisState) models.AnalysisState {
		return models.LoadedAnalysis(seq, username, sentiment.SampleResult(username), models.SourceSample, "")
	})
}

// complete applies a finished request if it is still the latest one.
func (c *Controller) complete(id string, seq uint64, next func(prev models.AnalysisState) models.AnalysisState) {
	unlock := c.lockSession(id)
	defer unlock()

	c.mu.Lock()
	req, ok := c.inflight[id]
	if ok && req.seq == seq {
		delete(c.inflight, id)
	}
	c.mu.Unlock()

	if !ok || req.seq != seq {
		slog.Debug("[Controller] Discarding stale result",
			slog.String("session", id),
			slog.Uint64("seq", seq))
		return
	}
	defer req.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), SAVE_TIMEOUT)
	defer cancel()

	s, err := c.load(ctx, id)
	if err != nil {
		slog.Error("[Controller] Failed to load session for result",
			slog.String("session", id),
			slog.String("error", err.Error()))
		return
	}
	if s.LastSeq != seq {
		slog.Debug("[Controller] Discarding stale result",
			slog.String("session", id),
			slog.Uint64("seq", seq),
			slog.Uint64("latest", s.LastSeq))
		return
	}

	s.Analysis = next(s.Analysis)
	if err := c.save(ctx, s); err != nil {
		slog.Error("[Controller] Failed to save result",
			slog.String("session", id),
			slog.String("error", err.Error()))
		return
	}

	slog.Info("[Controller] Request completed",
		slog.String("session", id),
		slog.Uint64("seq", seq),
		slog.String("phase", string(s.Analysis.Phase)),
		slog.String("source", string(s.Analysis.Source)))
}

// lockSession serializes access to one session and returns its unlock.
func (c *Controller) lockSession(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sessionLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

// load reads a session, creating a fresh one if missing. The session lock
// must be held.
func (c *Controller) load(ctx context.Context, id string) (*models.Session, error) {
	s, err := c.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return newSession(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("analysis: load session: %w", err)
	}
	s.Analysis = s.Analysis.Resolve(c.now())
	return s, nil
}

func (c *Controller) save(ctx context.Context, s *models.Session) error {
	if err := c.store.Put(ctx, s); err != nil {
		return fmt.Errorf("analysis: save session: %w", err)
	}
	return nil
}

func newSession(id string) *models.Session {
	return &models.Session{
		ID: id,
		Landing: models.LandingState{
			Samples: sentiment.LandingDemoSamples(),
		},
		Analysis: models.IdleAnalysis(),
	}
}
