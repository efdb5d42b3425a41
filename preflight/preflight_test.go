package preflight

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/goprovision/bootstrap/bootstraptest"
	"github.com/nomis52/goprovision/clients/sshclient/sshtest"
	"github.com/nomis52/goprovision/document"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// nodeServer starts a server trusting doc's key and points every node at it.
func nodeServer(t *testing.T, doc *document.Document, handler sshtest.Handler) *sshtest.Server {
	t.Helper()
	signer, err := document.ParsePrivateKey(doc.Key)
	require.NoError(t, err)

	srv := sshtest.NewServer(t, signer.PublicKey(), handler)
	doc.Key.SSHPort = srv.Port()
	for i := range doc.Nodes {
		doc.Nodes[i].IP = "127.0.0.1"
	}
	return srv
}

func sudoers(users ...string) sshtest.Handler {
	allowed := make(map[string]bool)
	for _, u := range users {
		allowed[u] = true
	}
	return func(user, command string) (string, uint32) {
		switch command {
		case loginCommand:
			return "", 0
		case sudoCommand:
			if allowed[user] {
				return "", 0
			}
			return "sudo: a password is required\n", 1
		}
		return "", 127
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		sudo        bool
		sudoers     []string
		wantErr     bool
		wantFailed  int
		wantCommand []string
	}{
		{
			name:        "login only",
			wantCommand: []string{loginCommand, loginCommand},
		},
		{
			name:        "passwordless sudo",
			sudo:        true,
			sudoers:     []string{"centos", "admin"},
			wantCommand: []string{loginCommand, sudoCommand, loginCommand, sudoCommand},
		},
		{
			name:        "sudo refused for one node",
			sudo:        true,
			sudoers:     []string{"centos"},
			wantErr:     true,
			wantFailed:  1,
			wantCommand: []string{loginCommand, sudoCommand, loginCommand, sudoCommand},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := bootstraptest.Document(t)
			doc.Key.PasswordlessSudoAccess = tt.sudo
			doc.Nodes[1].SSHUser = "admin"
			srv := nodeServer(t, doc, sudoers(tt.sudoers...))

			report, err := New(WithLogger(discardLogger()), WithConcurrency(1)).Check(context.Background(), doc)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrPreflightFailed)
			} else {
				require.NoError(t, err)
			}

			require.Len(t, report.Nodes, 2)
			assert.Equal(t, "centos", report.Nodes[0].User)
			assert.Equal(t, "admin", report.Nodes[1].User)
			for _, n := range report.Nodes {
				assert.True(t, n.Reachable)
				assert.Equal(t, tt.sudo, n.SudoChecked)
			}
			assert.Len(t, report.Failed(), tt.wantFailed)
			assert.ElementsMatch(t, tt.wantCommand, srv.Commands())
		})
	}
}

func TestCheck_UnknownKey(t *testing.T) {
	doc := bootstraptest.Document(t)
	nodeServer(t, doc, sudoers())
	// The server only trusts the original key.
	doc.Key.PrivateKeyContent = bootstraptest.PrivateKey(t)

	report, err := New(WithLogger(discardLogger())).Check(context.Background(), doc)
	require.ErrorIs(t, err, ErrPreflightFailed)
	assert.Contains(t, err.Error(), "2 of 2 nodes")
	for _, n := range report.Failed() {
		assert.False(t, n.Reachable)
		assert.Contains(t, n.Error, "ssh handshake")
	}
}

func TestCheck_NoKey(t *testing.T) {
	doc := bootstraptest.Document(t)
	doc.Key = nil

	_, err := New().Check(context.Background(), doc)
	assert.EqualError(t, err, "preflight needs an access key")
}
