// ABOUTME: Tests for the conversation bootstrap exchange
// ABOUTME: Uses an httptest server to cover success, unauthorized, named errors and malformed replies

package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBootstrapper(t *testing.T, opts Options, handler http.HandlerFunc) *Bootstrapper {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.Host = srv.URL
	b, err := NewBootstrapper(opts, nil)
	require.NoError(t, err)
	return b
}

func TestCreateSession_Success(t *testing.T) {
	var gotCookie, gotRequestID, gotPath, gotUA string
	b := newTestBootstrapper(t, Options{UserToken: "tok"}, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCookie = r.Header.Get("cookie")
		gotRequestID = r.Header.Get("x-ms-client-request-id")
		gotUA = r.Header.Get("sec-ch-ua-platform")
		w.Write([]byte(`{"conversationSignature":"sig","conversationId":"cid","clientId":"cl","result":{"value":"Success"}}`))
	})

	sess, err := b.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Session{Signature: "sig", ConversationID: "cid", ClientID: "cl"}, sess)
	assert.Equal(t, "/turing/conversation/create", gotPath)
	assert.Equal(t, "_U=tok", gotCookie)
	assert.Len(t, gotRequestID, 36)
	assert.Equal(t, `"Windows"`, gotUA)
}

func TestCreateSession_CookiesOverrideToken(t *testing.T) {
	var gotCookie string
	b := newTestBootstrapper(t, Options{UserToken: "tok", Cookies: "a=1; b=2"}, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("cookie")
		w.Write([]byte(`{"conversationSignature":"s","conversationId":"c","clientId":"x"}`))
	})

	_, err := b.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a=1; b=2", gotCookie)
}

func TestCreateSession_Unauthorized(t *testing.T) {
	b := newTestBootstrapper(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"value":"UnauthorizedRequest","message":"Sorry, you need to login first."}}`))
	})

	_, err := b.CreateSession(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "Sorry, you need to login first.")
}

func TestCreateSession_NamedError(t *testing.T) {
	b := newTestBootstrapper(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"value":"Forbidden","message":"region blocked"}}`))
	})

	_, err := b.CreateSession(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Forbidden", apiErr.Code)
	assert.Equal(t, "Forbidden: region blocked", apiErr.Error())
}

func TestCreateSession_MissingFields(t *testing.T) {
	b := newTestBootstrapper(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"conversationId":"cid"}`))
	})

	_, err := b.CreateSession(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestCreateSession_NonJSON(t *testing.T) {
	b := newTestBootstrapper(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := b.CreateSession(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestCreateSession_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	b, err := NewBootstrapper(Options{Host: host}, nil)
	require.NoError(t, err)

	_, err = b.CreateSession(context.Background())
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestNewBootstrapper_BadProxy(t *testing.T) {
	_, err := NewBootstrapper(Options{Proxy: "://nope"}, nil)
	assert.Error(t, err)
}

func TestSession_Complete(t *testing.T) {
	assert.True(t, Session{Signature: "a", ConversationID: "b", ClientID: "c"}.Complete())
	assert.False(t, Session{Signature: "a", ConversationID: "b"}.Complete())
}
