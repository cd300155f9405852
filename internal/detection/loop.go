package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/landmarker"
)

// State is the lifecycle stage of a Loop.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

const (
	// DefaultStabilizationDelay is the pause between the source becoming ready and model loading.
	DefaultStabilizationDelay = 100 * time.Millisecond

	detectTimeout = 5 * time.Second

	waitingForCameraMessage = "Waiting for camera..."
	loadingModelMessage     = "Loading face detection model..."
)

// ErrClosed is returned when starting a loop that has been closed.
var ErrClosed = errors.New("detection: loop closed")

var errLoadFailed = errors.New("detection: failed to initialize face detection")

// Status is what consumers observe about the loop's lifecycle.
type Status struct {
	State         State
	IsInitialized bool
	Err           error
}

// Update is delivered to subscribers whenever a snapshot or the status changes.
type Update struct {
	Snapshot *facequality.Snapshot
	Status   Status
}

// Config wires a Loop to its collaborators.
type Config struct {
	Source             Source
	Load               landmarker.Loader
	Options            landmarker.Options
	Scheduler          Scheduler
	Analyzer           *facequality.Analyzer
	Logger             *zap.Logger
	StabilizationDelay time.Duration
}

// Loop owns one detector and analyzes frames from its source until closed.
// Detection errors never leave the loop; they are reflected in Status.
type Loop struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	err     error
	latest  *facequality.Snapshot
	subs    map[int]chan Update
	nextSub int
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop builds a loop. Missing scheduler, analyzer and logger get defaults.
func NewLoop(cfg Config) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewIntervalScheduler(DefaultFPS)
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = facequality.NewAnalyzer(facequality.DefaultTopology(), cfg.Logger)
	}
	if cfg.StabilizationDelay < 0 {
		cfg.StabilizationDelay = 0
	}
	return &Loop{
		cfg:    cfg,
		logger: cfg.Logger.Named("detection_loop"),
		state:  StateUninitialized,
		latest: facequality.WaitingSnapshot(waitingForCameraMessage),
		subs:   make(map[int]chan Update),
	}
}

// Start waits for the source, loads the detector and begins analyzing frames.
// Calls while a run is in progress, or after a failure, do nothing; use Retry
// to recover from a failure.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.running || l.state == StateFailed {
		return nil
	}
	l.launchLocked(ctx)
	return nil
}

// Retry restarts initialization after a failure. It does nothing in any other state.
func (l *Loop) Retry(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.running || l.state != StateFailed {
		return nil
	}
	l.logger.Info("retrying face detection initialization")
	l.launchLocked(ctx)
	return nil
}

// Close stops the loop, waits for it to exit and releases the detector.
// Subscriber channels are closed. It is safe to call at any time, repeatedly.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	l.mu.Lock()
	for id, ch := range l.subs {
		close(ch)
		delete(l.subs, id)
	}
	l.mu.Unlock()
}

// Status returns the current lifecycle status.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

// Latest returns the most recently published snapshot.
func (l *Loop) Latest() *facequality.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

// Subscribe returns a channel carrying the newest update. Slow readers only
// ever see the latest value. The returned func unsubscribes.
func (l *Loop) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		close(ch)
		return ch, func() {}
	}
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	ch <- Update{Snapshot: l.latest, Status: l.statusLocked()}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if sub, ok := l.subs[id]; ok {
				close(sub)
				delete(l.subs, id)
			}
		})
	}
}

func (l *Loop) launchLocked(parent context.Context) {
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	l.running = true
	l.state, l.err = StateUninitialized, nil
	l.latest = facequality.WaitingSnapshot(waitingForCameraMessage)
	l.broadcastLocked()

	go l.run(ctx, done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer func() {
		l.mu.Lock()
		if l.done == done {
			l.running = false
		}
		l.mu.Unlock()
		close(done)
	}()

	select {
	case <-l.cfg.Source.Ready():
	case <-ctx.Done():
		return
	}

	timer := time.NewTimer(l.cfg.StabilizationDelay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return
	}

	l.setState(StateInitializing, nil, facequality.WaitingSnapshot(loadingModelMessage))
	detector, err := l.load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Error("failed to initialize face detection", zap.Error(err))
		l.fail(done, err)
		return
	}
	defer func() {
		if err := detector.Close(); err != nil {
			l.logger.Warn("failed to release face detector", zap.Error(err))
		}
	}()
	if ctx.Err() != nil {
		return
	}

	l.setState(StateReady, nil, facequality.EmptySnapshot())
	l.logger.Info("face detection initialized")

	start := time.Now()
	l.cfg.Scheduler.Run(ctx, func(stepCtx context.Context) {
		l.step(stepCtx, detector, start)
	})
}

func (l *Loop) load(ctx context.Context) (detector landmarker.Detector, err error) {
	defer func() {
		if r := recover(); r != nil {
			detector, err = nil, fmt.Errorf("%w: %v", errLoadFailed, r)
		}
	}()
	if l.cfg.Load == nil {
		return nil, errLoadFailed
	}
	detector, err = l.cfg.Load(ctx, l.cfg.Options)
	if err == nil && detector == nil {
		err = errLoadFailed
	}
	return detector, err
}

func (l *Loop) step(ctx context.Context, detector landmarker.Detector, start time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("face detection step panicked", zap.Any("panic", r))
		}
	}()

	src := l.cfg.Source
	if !src.HasEnoughData() {
		return
	}
	if w, h := src.Dimensions(); w <= 0 || h <= 0 {
		return
	}
	frame := src.Frame()
	if frame == nil {
		return
	}

	ts := time.Since(start)
	// An in-flight detection finishes even if the loop is torn down meanwhile;
	// its result is dropped below.
	detectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detectTimeout)
	faces, err := detector.DetectForFrame(detectCtx, frame, ts)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if !landmarker.IsBenignROI(err) {
			l.logger.Warn("face detection error", zap.Error(err))
		}
		return
	}

	snapshot := l.cfg.Analyzer.Analyze(facequality.DetectionResult{Faces: faces, Timestamp: ts}, frame)
	if snapshot == nil {
		return
	}

	l.mu.Lock()
	l.latest = snapshot
	l.broadcastLocked()
	l.mu.Unlock()
}

func (l *Loop) setState(state State, err error, snapshot *facequality.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state, l.err = state, err
	if snapshot != nil {
		l.latest = snapshot
	}
	l.broadcastLocked()
}

// fail publishes the failure and marks the run finished in one step, so a
// subscriber reacting to Failed can Retry right away.
func (l *Loop) fail(done chan struct{}, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state, l.err = StateFailed, err
	if l.done == done {
		l.running = false
	}
	l.broadcastLocked()
}

func (l *Loop) statusLocked() Status {
	return Status{State: l.state, IsInitialized: l.state == StateReady, Err: l.err}
}

func (l *Loop) broadcastLocked() {
	update := Update{Snapshot: l.latest, Status: l.statusLocked()}
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		ch <- update
	}
}
