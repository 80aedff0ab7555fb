package backend

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/stock"
)

// lhttpChild is one spawned local-HTTP child process, listening on a
// private UNIX socket the adapter dials, spawned or leased through
// LhttpStock below (spec §4.7).
type lhttpChild struct {
	cmd      *exec.Cmd
	sockPath string
}

func (c *lhttpChild) Healthy() bool {
	if c.cmd.Process == nil {
		return false
	}

	return c.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (c *lhttpChild) Close() {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_, _ = c.cmd.Process.Wait()
	}

	_ = os.Remove(c.sockPath)
}

// LhttpStock spawns-or-leases child HTTP servers keyed by their command
// line, generalizing internal/stock.Map to a process rather than a
// connection (spec §4.7).
type LhttpStock struct {
	pool    *stock.Map[string, *lhttpChild]
	sockDir string
	seq     int64
}

func NewLhttpStock(sockDir string) *LhttpStock {
	s := &LhttpStock{sockDir: sockDir}

	s.pool = stock.New(stock.Config{MaxPerKey: 1}, func(ctx context.Context, commandLine string) (*lhttpChild, error) {
		return s.spawn(ctx, commandLine)
	})

	return s
}

// Close terminates every spawned child and releases the underlying pool.
func (s *LhttpStock) Close() {
	s.pool.Close()
}

func (s *LhttpStock) spawn(ctx context.Context, commandLine string) (*lhttpChild, error) {
	n := atomic.AddInt64(&s.seq, 1)
	sockPath := filepath.Join(s.sockDir, fmt.Sprintf("lhttp-%d.sock", n))

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", commandLine)
	cmd.Env = append(os.Environ(), "LHTTP_SOCKET="+sockPath)
	cmd.Stderr = lhttpStderrLogger{commandLine: commandLine}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	if err := waitForSocket(sockPath, 5*time.Second); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return &lhttpChild{cmd: cmd, sockPath: sockPath}, nil
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}

		time.Sleep(20 * time.Millisecond)
	}

	return fmt.Errorf("backend/lhttp: child did not create socket %s within %s", path, timeout)
}

// lhttpStderrLogger pipes a spawned child's stderr into structured
// logging, matching WAS/FCGI's "own a stderr pipe to the daemon log".
type lhttpStderrLogger struct {
	commandLine string
}

func (l lhttpStderrLogger) Write(p []byte) (int, error) {
	log.Warn().Str("command", l.commandLine).Str("line", string(p)).Msg("lhttp: child stderr")

	return len(p), nil
}

// LHTTPAdapter sends a request to a child leased from an LhttpStock.
type LHTTPAdapter struct {
	stock *LhttpStock
}

func NewLHTTPAdapter(s *LhttpStock) *LHTTPAdapter {
	return &LHTTPAdapter{stock: s}
}

func (a *LHTTPAdapter) Send(ctx context.Context, commandLine string, req Request) (*Response, error) {
	child, err := a.stock.pool.Get(ctx, commandLine)
	if err != nil {
		return nil, &UpstreamError{Class: Refused, Err: err}
	}

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", child.sockPath)
	}

	httpAdapter := NewHTTPAdapter("http", dial)

	resp, err := httpAdapter.Send(ctx, "localhost", req)

	healthy := err == nil
	a.stock.pool.Put(commandLine, child, healthy)

	return resp, err
}
