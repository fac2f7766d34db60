package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRateLimited is returned when polls are triggered faster than the cooldown.
var ErrRateLimited = errors.New("rate limit exceeded")

// triggerCooldown is the minimum time between two manual triggers.
const triggerCooldown = 30 * time.Second

// DefaultPollInterval is used when no positive interval is configured.
const DefaultPollInterval = 5 * time.Minute

// PollResult contains the result of a poll.
type PollResult struct {
	Batch           BatchResult `json:"batch" yaml:"batch"`
	PolledAt        time.Time   `json:"polled_at" yaml:"polled_at"`
	NextScheduledAt time.Time   `json:"next_scheduled_at,omitempty" yaml:"next_scheduled_at,omitempty"`
}

// PollService periodically processes new or changed objects of a remote
// geometry source, where filesystem notifications are not available.
type PollService struct {
	batch    *BatchProcessor
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	lastTrigger time.Time
	triggerMu   sync.Mutex

	// Prevents concurrent polls
	pollMu sync.Mutex

	nextPoll time.Time
	nextMu   sync.RWMutex
}

// NewPollService creates a new poll service.
func NewPollService(batch *BatchProcessor, interval time.Duration, logger *slog.Logger) *PollService {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollService{
		batch:       batch,
		interval:    interval,
		logger:      logger,
		stopCh:      make(chan struct{}),
		lastTrigger: time.Now().Add(-triggerCooldown - time.Second),
	}
}

// Start runs an initial poll and then polls every interval until Stop is
// called or ctx is canceled.
func (s *PollService) Start(ctx context.Context) {
	s.logger.Info("starting poll service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *PollService) run(ctx context.Context) {
	defer s.wg.Done()

	s.poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.setNextPoll(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poll service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("poll service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled poll triggered")
			s.poll(ctx)
			s.setNextPoll(time.Now().Add(s.interval))
		}
	}
}

// Stop stops the poll loop and waits for a running poll to finish.
func (s *PollService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping poll service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerPoll polls immediately. It returns ErrRateLimited when called again
// within the cooldown.
func (s *PollService) TriggerPoll(ctx context.Context) (PollResult, error) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()

	if time.Since(s.lastTrigger) < triggerCooldown {
		return PollResult{}, ErrRateLimited
	}
	s.lastTrigger = time.Now()

	return s.pollWithResult(ctx)
}

func (s *PollService) poll(ctx context.Context) {
	if _, err := s.pollWithResult(ctx); err != nil {
		s.logger.Error("poll failed", "error", err)
	}
}

func (s *PollService) pollWithResult(ctx context.Context) (PollResult, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	res, err := s.batch.RunChanged(ctx)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{
		Batch:           res,
		PolledAt:        time.Now(),
		NextScheduledAt: s.getNextPoll(),
	}, nil
}

func (s *PollService) setNextPoll(t time.Time) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	s.nextPoll = t
}

func (s *PollService) getNextPoll() time.Time {
	s.nextMu.RLock()
	defer s.nextMu.RUnlock()
	return s.nextPoll
}

// Interval returns the poll interval.
func (s *PollService) Interval() time.Duration {
	return s.interval
}
