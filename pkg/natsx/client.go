package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// Connect dials url, falling back to NATS_URL and then the default local server.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = os.Getenv("NATS_URL")
	}
	if url == "" {
		url = nats.DefaultURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("llmux"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
