package landmarker

import (
	"context"
	"errors"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/blackmouse572/skin-doctor/internal/facequality"
)

// Manager owns one lazily acquired detector. It is created by the composition
// root and shared by callers that need still-image detection.
type Manager struct {
	load   Loader
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	detector Detector
	closed   bool
}

// NewManager returns a manager that acquires its detector with load on first use.
func NewManager(load Loader, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{load: load, opts: opts, logger: logger}
}

// Get returns the detector, loading it on the first call. A failed load is not
// cached, so a later call tries again.
func (m *Manager) Get(ctx context.Context) (Detector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.detector != nil {
		return m.detector, nil
	}
	if m.load == nil {
		return nil, errors.New("landmarker: no loader configured")
	}

	detector, err := m.load(ctx, m.opts)
	if err != nil {
		m.logger.Error("failed to load face landmarker", zap.Error(err), zap.String("mode", string(m.opts.Mode)))
		return nil, err
	}
	m.logger.Info("face landmarker loaded", zap.String("mode", string(m.opts.Mode)), zap.Int("num_faces", m.opts.NumFaces))
	m.detector = detector
	return detector, nil
}

// DetectForImage acquires the detector if needed and runs still-image detection.
func (m *Manager) DetectForImage(ctx context.Context, img image.Image) ([]facequality.LandmarkSet, error) {
	detector, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return detector.DetectForImage(ctx, img)
}

// Close releases the detector. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.detector == nil {
		return nil
	}
	err := m.detector.Close()
	m.detector = nil
	return err
}
