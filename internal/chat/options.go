package chat

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vgs/marketchat/internal/metrics"
)

const (
	DefaultMaxDraftLength = 2000
	DefaultNarrowWidth    = 80
)

type options struct {
	logger      *zap.Logger
	metrics     *metrics.Metrics
	limiter     *rate.Limiter
	maxDraft    int
	narrowWidth int
}

// Option configures the stores and the page.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSendLimit allows perMinute sends per minute with a burst of the same
// size. Zero or less disables the limiter.
func WithSendLimit(perMinute int) Option {
	return func(o *options) {
		if perMinute <= 0 {
			o.limiter = nil
			return
		}
		o.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

func WithMaxDraftLength(n int) Option {
	return func(o *options) { o.maxDraft = n }
}

// WithNarrowWidth sets the viewport width under which only one panel shows.
func WithNarrowWidth(n int) Option {
	return func(o *options) { o.narrowWidth = n }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      zap.NewNop(),
		maxDraft:    DefaultMaxDraftLength,
		narrowWidth: DefaultNarrowWidth,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
