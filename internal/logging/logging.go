// Package logging builds the process logger.
//
// Records always go to the console. When a target is configured, at build time
// or later through Target.Attach, they are also written as JSON objects to a file (plain path or file:// URL) or, one
// datagram per record, to a unix datagram socket (unix:// URL).
package logging

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Name is the root logger name.
const Name = "git-audit"

// Options configures New.
type Options struct {
	Verbose bool      // enable debug records
	Target  string    // optional JSON sink
	Console io.Writer // defaults to os.Stderr
}

var registerOnce sync.Once

func registerSinks() error {
	var err error
	registerOnce.Do(func() {
		err = zap.RegisterSink("unix", newUnixSink)
	})
	return err
}

// New builds the logger described by opts. The returned function flushes and
// closes the sinks.
func New(opts Options) (*zap.Logger, func(), error) {
	logger, target := Start(opts)
	if opts.Target != "" {
		if err := target.Attach(opts.Target); err != nil {
			return nil, nil, err
		}
	}
	return logger, func() {
		_ = logger.Sync()
		target.Close()
	}, nil
}

// Start builds a console logger whose JSON target is attached later, once it
// is known. opts.Target is ignored. Loggers derived before Attach write to the
// target from then on.
func Start(opts Options) (*zap.Logger, *Target) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Verbose {
		level.SetLevel(zapcore.DebugLevel)
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if console != os.Stderr {
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	target := &Target{}
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(zapcore.AddSync(console)), level),
		&targetCore{LevelEnabler: level, target: target},
	)
	return zap.New(core).Named(Name), target
}

// Target is the optional JSON sink of a logger built by Start.
type Target struct {
	mu    sync.RWMutex
	core  zapcore.Core
	close func()
}

// Attach opens target (a path, file:// or unix:// URL) and starts writing
// records to it. A previously attached sink is closed.
func (t *Target) Attach(target string) error {
	if err := registerSinks(); err != nil {
		return fmt.Errorf("registering log sinks: %w", err)
	}
	sink, closeSink, err := zap.Open(target)
	if err != nil {
		return fmt.Errorf("opening log target %q: %w", target, err)
	}
	t.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.core = zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), sink, zapcore.DebugLevel)
	t.close = closeSink
	return nil
}

// Close flushes and closes the attached sink, if any.
func (t *Target) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.core == nil {
		return
	}
	_ = t.core.Sync()
	t.close()
	t.core, t.close = nil, nil
}

func (t *Target) current() zapcore.Core {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.core
}

// targetCore forwards to whatever sink the Target holds at write time.
type targetCore struct {
	zapcore.LevelEnabler
	target *Target
	fields []zapcore.Field
}

func (c *targetCore) With(fields []zapcore.Field) zapcore.Core {
	return &targetCore{
		LevelEnabler: c.LevelEnabler,
		target:       c.target,
		fields:       append(c.fields[:len(c.fields):len(c.fields)], fields...),
	}
}

func (c *targetCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) && c.target.current() != nil {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *targetCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	core := c.target.current()
	if core == nil {
		return nil
	}
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core.Write(e, fields)
}

func (c *targetCore) Sync() error {
	if core := c.target.current(); core != nil {
		return core.Sync()
	}
	return nil
}

// jsonEncoderConfig emits {"time", "level", "target", "message", ...fields}.
func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.LevelKey = "level"
	cfg.NameKey = "target"
	cfg.MessageKey = "message"
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return cfg
}

// unixSink sends each write as one datagram.
type unixSink struct {
	conn *net.UnixConn
}

func newUnixSink(u *url.URL) (zap.Sink, error) {
	if u.Path == "" {
		return nil, fmt.Errorf("unix log target %q has no socket path", u.String())
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: u.Path, Net: "unixgram"})
	if err != nil {
		return nil, err
	}
	return &unixSink{conn: conn}, nil
}

func (s *unixSink) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *unixSink) Sync() error                 { return nil }
func (s *unixSink) Close() error                { return s.conn.Close() }
