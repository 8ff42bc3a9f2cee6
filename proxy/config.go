package proxy

import (
	"time"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
)

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8787")
	ListenAddr string

	// UpstreamURL is the base URL of the remote chat service
	// (e.g., "https://chat.example.com/api/v2").
	UpstreamURL string

	// AccessToken is injected on every upstream request. It never reaches
	// the downstream client.
	AccessToken string

	// Project is the optional upstream project scope.
	Project string

	// TokenHeader and ProjectHeader name the upstream credential headers.
	TokenHeader   string
	ProjectHeader string

	// UpstreamTimeout bounds JSON calls, and stream calls until headers arrive.
	UpstreamTimeout time.Duration

	// DebugHTTP logs every inbound request; DebugHTTPBody adds body previews.
	DebugHTTP     bool
	DebugHTTPBody bool

	// DebugUpstream logs upstream requests and responses with credentials redacted.
	DebugUpstream bool

	// Publisher receives a session event for every relayed stream.
	// A no-op publisher is used when nil.
	Publisher eventstream.Publisher
}
