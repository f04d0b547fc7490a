package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config selects and configures an engine.
type Config struct {
	Engine    string
	Options   Options
	Timeout   time.Duration
	RateLimit int // requests per minute for remote engines, 0 = unlimited
	Paddle    PaddleConfig
	OpenAI    VisionConfig
	Logger    *slog.Logger
}

// Label returns the parser label the configured engine reports, without building it.
func (c Config) Label() string {
	switch c.Engine {
	case EnginePaddle:
		return PaddleName
	case EngineOpenAI:
		return VisionName
	default:
		return TesseractName
	}
}

// New builds the configured engine.
func New(cfg Config) (Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Engine {
	case "", EngineTesseract:
		e, err := NewTesseractEngine(cfg.Options)
		if err != nil {
			return nil, err
		}
		return e, nil

	case EnginePaddle:
		pc := cfg.Paddle
		if pc.Timeout == 0 {
			pc.Timeout = cfg.Timeout
		}
		if pc.RateLimit == 0 {
			pc.RateLimit = cfg.RateLimit
		}
		pc.Logger = logger
		e, err := NewPaddleEngine(pc, cfg.Options)
		if err != nil {
			return nil, err
		}
		return e, nil

	case EngineOpenAI:
		vc := cfg.OpenAI
		if vc.Timeout == 0 {
			vc.Timeout = cfg.Timeout
		}
		if vc.RateLimit == 0 {
			vc.RateLimit = cfg.RateLimit
		}
		vc.Logger = logger
		e, err := NewVisionEngine(vc, cfg.Options)
		if err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown engine %q (want one of: %s)", cfg.Engine, strings.Join(EngineNames, ", "))
	}
}

// Check reports whether the configured engine can run, without building it.
// Failures wrap ErrUnavailable.
func Check(cfg Config) error {
	switch cfg.Engine {
	case "", EngineTesseract:
		return CheckTesseract(cfg.Options)
	case EnginePaddle:
		return CheckPaddle(cfg.Paddle, cfg.Options)
	case EngineOpenAI:
		return CheckVision(cfg.OpenAI, cfg.Options)
	default:
		return fmt.Errorf("%w: unknown engine %q", ErrUnavailable, cfg.Engine)
	}
}

// Lazy defers building an engine until the first page needs it,
// then reuses that instance for the rest of the run.
type Lazy struct {
	name    string
	factory func() (Engine, error)

	once   sync.Once
	built  atomic.Bool
	engine Engine
	err    error
}

// NewLazy wraps a factory. name is reported before the engine exists.
func NewLazy(name string, factory func() (Engine, error)) *Lazy {
	return &Lazy{name: name, factory: factory}
}

// NewLazyFromConfig is NewLazy over New(cfg).
func NewLazyFromConfig(cfg Config) *Lazy {
	return NewLazy(cfg.Label(), func() (Engine, error) { return New(cfg) })
}

// Name returns the label of the wrapped engine.
func (l *Lazy) Name() string {
	return l.name
}

// Recognize builds the engine on first use and delegates to it.
// A failed build is remembered; later calls return the same error.
func (l *Lazy) Recognize(ctx context.Context, img []byte) ([]Detection, error) {
	engine, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", l.name, err)
	}
	return engine.Recognize(ctx, img)
}

// Built reports whether construction has been attempted.
func (l *Lazy) Built() bool {
	return l.built.Load()
}

// Close releases the engine if it was built and holds resources.
func (l *Lazy) Close() error {
	if !l.Built() {
		return nil
	}
	if c, ok := l.engine.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (l *Lazy) get() (Engine, error) {
	l.once.Do(func() {
		l.engine, l.err = l.factory()
		l.built.Store(true)
	})
	return l.engine, l.err
}

var _ Engine = (*Lazy)(nil)
