package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/run"
)

// resultEvent is the socket.io event name run results are emitted under.
const resultEvent = "run_result"

// connectTimeout bounds how long one notification waits for the socket.io
// handshake before giving up.
const connectTimeout = 15 * time.Second

// SocketIOSink emits run results to a socket.io endpoint. Each notification
// opens a short-lived connection, emits one event and disconnects, so a
// flaky dashboard cannot hold engine resources.
type SocketIOSink struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// NewSocketIOSink returns a sink targeting the given socket.io URL.
func NewSocketIOSink(rawURL, namespace string, insecureSkipVerify bool) *SocketIOSink {
	return &SocketIOSink{URL: rawURL, Namespace: namespace, InsecureSkipVerify: insecureSkipVerify}
}

// Notify implements run.Sink.
func (s *SocketIOSink) Notify(ctx context.Context, res run.Result) error {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", s.URL)

	parsedURL, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if s.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(s.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to notification endpoint", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errs[0].(error)
		connectChan <- err
	})

	io.Connect()
	defer io.Disconnect()

	select {
	case err := <-connectChan:
		if err != nil {
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(connectTimeout):
		return fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}

	gates := make(map[string]string, len(res.Gates))
	for name, status := range res.Gates {
		gates[name] = status.String()
	}
	instances := make(map[string]string, len(res.Instances))
	for id, status := range res.Instances {
		instances[id] = status.String()
	}

	if err := io.Emit(resultEvent, map[string]any{
		"run_id":    res.RunID,
		"group":     res.Group,
		"passed":    res.Passed,
		"gates":     gates,
		"instances": instances,
	}); err != nil {
		return fmt.Errorf("emitting run result: %w", err)
	}
	logger.Debug("Run result emitted.", "runID", res.RunID)
	return nil
}
