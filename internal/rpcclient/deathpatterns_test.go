package rpcclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchDeathTag(t *testing.T) {
	tests := []struct {
		name    string
		stderr  string
		wantTag string
		wantOK  bool
	}{
		{"socket not found", "emacsclient: can't find socket; use --socket-name or set EMACS_SOCKET_NAME", "socket_not_found", true},
		{"socket missing file", "emacsclient: No such file or directory", "socket_missing", true},
		{"connection refused", "dial unix: connect: connection refused", "connection_refused", true},
		{"connection reset", "read: connection reset by peer", "connection_reset", true},
		{"server unresponsive", "*ERROR*: Server did not respond within 3000ms", "server_unresponsive", true},
		{"socket unavailable", "the socket  is not available right now", "socket_unavailable", true},
		{"unrecognized error", "void-function my-broken-hook", "", false},
		{"case insensitive", "CONNECTION REFUSED", "connection_refused", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, ok := matchDeathTag(tt.stderr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTag, tag)
		})
	}
}
