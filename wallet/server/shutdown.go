package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/opentelemetry"
	"github.com/jose254W/cards/wallet/runtime"
)

// ErrNoServersConfigured indicates no HTTP server was configured.
var ErrNoServersConfigured = errors.New("no servers configured: use WithHTTPServer()")

const defaultShutdownTimeout = 30 * time.Second

// Closer releases a resource during shutdown.
type Closer func(ctx context.Context) error

type namedCloser struct {
	name string
	fn   Closer
}

// ServerManager handles the graceful shutdown of the HTTP server and the
// resources registered with it.
type ServerManager struct {
	httpServer         *fiber.App
	httpAddress        string
	listener           net.Listener
	telemetry          *opentelemetry.Telemetry
	closers            []namedCloser
	logger             log.Logger
	serversStarted     chan struct{}
	serversStartedOnce sync.Once
	shutdownChan       <-chan struct{}
	shutdownOnce       sync.Once
	shutdownErr        error
	shutdownTimeout    time.Duration
	startupErrors      chan error
}

// NewServerManager creates a new instance of ServerManager.
// If logger is nil, a no-op logger is used.
func NewServerManager(telemetry *opentelemetry.Telemetry, logger log.Logger) *ServerManager {
	if logger == nil {
		logger = log.NewNop()
	}

	return &ServerManager{
		telemetry:       telemetry,
		logger:          logger,
		serversStarted:  make(chan struct{}),
		shutdownTimeout: defaultShutdownTimeout,
		startupErrors:   make(chan error, 1),
	}
}

// WithHTTPServer configures the HTTP server and its listen address.
func (sm *ServerManager) WithHTTPServer(app *fiber.App, address string) *ServerManager {
	sm.httpServer = app
	sm.httpAddress = address

	return sm
}

// WithListener serves the HTTP server on ln instead of listening on the
// configured address.
func (sm *ServerManager) WithListener(ln net.Listener) *ServerManager {
	sm.listener = ln

	return sm
}

// WithCloser registers fn to run during shutdown. Closers run in reverse
// registration order after the HTTP server stopped.
func (sm *ServerManager) WithCloser(name string, fn Closer) *ServerManager {
	if fn != nil {
		sm.closers = append(sm.closers, namedCloser{name: name, fn: fn})
	}

	return sm
}

// WithShutdownChannel configures a custom shutdown channel.
// This allows tests to trigger shutdown deterministically instead of relying on OS signals.
func (sm *ServerManager) WithShutdownChannel(ch <-chan struct{}) *ServerManager {
	sm.shutdownChan = ch

	return sm
}

// WithShutdownTimeout bounds the whole shutdown sequence. Defaults to 30 seconds.
func (sm *ServerManager) WithShutdownTimeout(d time.Duration) *ServerManager {
	if d > 0 {
		sm.shutdownTimeout = d
	}

	return sm
}

// ServersStarted returns a channel that is closed when the server goroutine has been launched.
// It signals that the goroutine was spawned, not that the socket is ready.
func (sm *ServerManager) ServersStarted() <-chan struct{} {
	return sm.serversStarted
}

// StartWithGracefulShutdownWithError starts the server and blocks until a
// termination signal, the shutdown channel or a startup failure. The startup
// failure and every shutdown error are returned joined.
func (sm *ServerManager) StartWithGracefulShutdownWithError() error {
	if sm.httpServer == nil {
		return ErrNoServersConfigured
	}

	sm.startServers()

	startupErr := sm.waitForShutdown()

	sm.logInfo("Gracefully shutting down...")

	return errors.Join(startupErr, sm.Shutdown())
}

func (sm *ServerManager) startServers() {
	runtime.SafeGoWithContextAndComponent(
		context.Background(),
		sm.logger,
		"server",
		"start_http_server",
		runtime.KeepRunning,
		func(_ context.Context) {
			var err error

			if sm.listener != nil {
				sm.logInfof("Starting HTTP server on %s", sm.listener.Addr())
				err = sm.httpServer.Listener(sm.listener)
			} else {
				sm.logInfof("Starting HTTP server on %s", sm.httpAddress)
				err = sm.httpServer.Listen(sm.httpAddress)
			}

			if err != nil {
				sm.logErrorf("HTTP server error: %v", err)

				select {
				case sm.startupErrors <- fmt.Errorf("HTTP server: %w", err):
				default:
				}
			}
		},
	)

	sm.serversStartedOnce.Do(func() {
		close(sm.serversStarted)
	})
}

func (sm *ServerManager) waitForShutdown() error {
	if sm.shutdownChan != nil {
		select {
		case <-sm.shutdownChan:
			return nil
		case err := <-sm.startupErrors:
			sm.logErrorf("Server startup failed: %v", err)
			return err
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case <-c:
		return nil
	case err := <-sm.startupErrors:
		sm.logErrorf("Server startup failed: %v", err)
		return err
	}
}

// Shutdown stops the HTTP server, runs the closers, flushes telemetry and
// syncs the logger. Only the first call does the work; later calls return
// the same result.
func (sm *ServerManager) Shutdown() error {
	sm.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
		defer cancel()

		var errs []error

		if sm.httpServer != nil {
			sm.logInfo("Shutting down HTTP server...")

			if err := sm.httpServer.ShutdownWithContext(ctx); err != nil {
				sm.logErrorf("Error during HTTP server shutdown: %v", err)
				errs = append(errs, fmt.Errorf("http server: %w", err))
			}
		}

		for i := len(sm.closers) - 1; i >= 0; i-- {
			closer := sm.closers[i]
			sm.logInfof("Closing %s...", closer.name)

			if err := closer.fn(ctx); err != nil {
				sm.logErrorf("Error closing %s: %v", closer.name, err)
				errs = append(errs, fmt.Errorf("%s: %w", closer.name, err))
			}
		}

		if sm.telemetry != nil {
			sm.logInfo("Shutting down telemetry...")

			if err := sm.telemetry.Shutdown(ctx); err != nil {
				sm.logErrorf("Error during telemetry shutdown: %v", err)
				errs = append(errs, fmt.Errorf("telemetry: %w", err))
			}
		}

		sm.logInfo("Graceful shutdown completed")

		if err := sm.logger.Sync(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger sync: %w", err))
		}

		sm.shutdownErr = errors.Join(errs...)
	})

	return sm.shutdownErr
}

func (sm *ServerManager) logInfo(msg string) {
	sm.logger.Log(context.Background(), log.LevelInfo, msg)
}

func (sm *ServerManager) logInfof(format string, args ...any) {
	sm.logger.Log(context.Background(), log.LevelInfo, fmt.Sprintf(format, args...))
}

func (sm *ServerManager) logErrorf(format string, args ...any) {
	sm.logger.Log(context.Background(), log.LevelError, fmt.Sprintf(format, args...))
}
