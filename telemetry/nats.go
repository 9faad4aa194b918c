package telemetry

import (
	"context"
	"log/slog"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/casualjim/llmux/pkg/natsx"
	"github.com/casualjim/llmux/pkg/slogx"
)

// DefaultSubjectPrefix is the subject root used when none is given.
const DefaultSubjectPrefix = "llmux.telemetry"

// Publisher is the subset of *nats.Conn the NATS sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

type natsSink struct {
	pub    Publisher
	prefix string
}

// NATS returns a sink publishing each event as JSON to
// <prefix>.<provider>.<status>.
func NATS(pub Publisher, prefix string) Sink {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &natsSink{pub: pub, prefix: prefix}
}

// ConnectNATS dials the server named by url, or NATS_URL when url is empty,
// and returns a sink publishing to it along with the connection to close.
func ConnectNATS(url, prefix string) (Sink, *nats.Conn, error) {
	conn, err := natsx.Connect(url)
	if err != nil {
		return nil, nil, err
	}
	return NATS(conn, prefix), conn, nil
}

// Subject returns the subject an event is published to.
func (n *natsSink) Subject(e Event) string {
	provider := e.Provider
	if provider == "" {
		provider = "unknown"
	}
	return n.prefix + "." + provider + "." + string(e.Status)
}

func (n *natsSink) Emit(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.WarnContext(ctx, "failed to marshal telemetry event", slogx.Error(err))
		return
	}
	if err := n.pub.Publish(n.Subject(e), data); err != nil {
		slog.WarnContext(ctx, "failed to publish telemetry event", slogx.Error(err), slogx.Provider(e.Provider))
	}
}
