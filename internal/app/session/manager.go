package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hickar/mailagent/internal/app/config"
)

const noopProbeTimeout = 5 * time.Second

// Operation is one unit of work executed against a validated connection.
type Operation func(conn Mailbox) error

// Manager owns at most one live retrieval-protocol session for a single
// account endpoint. It validates the session before every use, replaces
// it wholesale on invalidation and wraps operations in a
// retry-with-backoff envelope.
//
// Connection acquisition and replacement are serialized behind a single
// mutex so concurrent callers never race to open duplicate connections.
type Manager struct {
	endpoint config.Endpoint
	dialer   Dialer
	policy   config.RetryPolicy
	logger   *slog.Logger

	mu           sync.Mutex
	conn         Mailbox
	lastActivity time.Time

	// sleep is swapped out in tests to observe backoff values.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(endpoint config.Endpoint, dialer Dialer, policy config.RetryPolicy, logger *slog.Logger) *Manager {
	return &Manager{
		endpoint: endpoint,
		dialer:   dialer,
		policy:   policy,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Connection returns a validated transport connection, creating or
// replacing the current one as needed.
func (m *Manager) Connection(ctx context.Context) (Mailbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validLocked(ctx) {
		m.closeLocked(ctx)

		conn, err := m.createLocked(ctx)
		if err != nil {
			return nil, err
		}
		m.conn = conn
	}

	m.lastActivity = time.Now()
	return m.conn, nil
}

// ExecuteWithRetry runs op against a validated connection. Failures
// classified as retryable discard the connection and retry after an
// exponentially growing backoff, doubled from the policy's initial
// value and capped at its maximum. Non-retryable failures propagate
// immediately. Exhausting all attempts returns the last error tagged
// with the operation name and attempt count.
func (m *Manager) ExecuteWithRetry(ctx context.Context, name string, op Operation) error {
	var lastErr error
	backoff := m.policy.InitialBackoff

	for attempt := 1; attempt <= m.policy.MaxRetries; attempt++ {
		conn, err := m.Connection(ctx)
		if err == nil {
			m.logger.DebugContext(ctx, "executing operation",
				slog.String("operation", name),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", m.policy.MaxRetries),
			)

			if err = op(conn); err == nil {
				m.touch()
				return nil
			}
		}

		lastErr = err
		m.logger.WarnContext(ctx, "operation failed",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if !Retryable(err) {
			return fmt.Errorf("%s: %w", name, err)
		}

		// Discard the session so the next attempt reconnects from scratch.
		m.discard(ctx)

		if attempt == m.policy.MaxRetries {
			break
		}

		m.logger.InfoContext(ctx, "retrying operation",
			slog.String("operation", name),
			slog.Duration("backoff", backoff),
		)
		if err := m.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		backoff = min(backoff*2, m.policy.MaxBackoff)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, m.policy.MaxRetries, lastErr)
}

// Close logs out and discards the current session. It is idempotent and
// safe to call with no active session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(ctx)
}

// LastActivity reports when the session last completed an operation.
// The zero time means no session has been used yet.
func (m *Manager) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Endpoint returns the account endpoint this manager was built for.
func (m *Manager) Endpoint() config.Endpoint {
	return m.endpoint
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *Manager) discard(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(ctx)
}

// validLocked reports whether the current session may still be used:
// it must exist, must not have been idle past the session timeout, and
// must answer a bounded liveness probe.
func (m *Manager) validLocked(ctx context.Context) bool {
	if m.conn == nil {
		return false
	}

	if !m.lastActivity.IsZero() {
		elapsed := time.Since(m.lastActivity)
		if elapsed > m.policy.SessionTimeout {
			m.logger.WarnContext(ctx, "session timed out", slog.Duration("idle", elapsed))
			return false
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, noopProbeTimeout)
	defer cancel()

	if err := m.conn.Noop(probeCtx); err != nil {
		m.logger.WarnContext(ctx, "session validation failed", slog.Any("error", err))
		return false
	}

	return true
}

func (m *Manager) createLocked(ctx context.Context) (Mailbox, error) {
	m.logger.InfoContext(ctx, "creating new connection", slog.String("addr", m.endpoint.Addr()))

	conn, err := m.dialer.Dial(m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := conn.Login(m.endpoint.Username, m.endpoint.Password); err != nil {
		if logoutErr := conn.Logout(); logoutErr != nil {
			m.logger.DebugContext(ctx, "logout after failed login", slog.Any("error", logoutErr))
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	m.logger.InfoContext(ctx, "connection established")
	return conn, nil
}

func (m *Manager) closeLocked(ctx context.Context) {
	if m.conn == nil {
		return
	}

	if err := m.conn.Logout(); err != nil {
		m.logger.DebugContext(ctx, "error during logout", slog.Any("error", err))
	}
	m.conn = nil
	m.lastActivity = time.Time{}
}

// sleepContext waits for the duration, aborting early when the context
// is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
