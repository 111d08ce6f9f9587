package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fafa-a/runtty/internal/protocol/wire"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	raw, err := decodeResponse("c", []byte(` {"status":"running"} `))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"running"}`, string(raw))

	_, err = decodeResponse("c", []byte(`{"error":null,"status":"ok"}`))
	require.NoError(t, err)

	_, err = decodeResponse("c", []byte(`{"error":""}`))
	require.NoError(t, err)

	_, err = decodeResponse("c", []byte(`{"error":{"code":7}}`))
	msg, ok := RemoteMessage(err)
	require.True(t, ok)
	require.Equal(t, `{"code":7}`, msg)

	body, err := json.Marshal(wire.ErrorResponse{Error: wire.ErrorUserCancelled})
	require.NoError(t, err)
	_, err = decodeResponse("c", body)
	msg, ok = RemoteMessage(err)
	require.True(t, ok)
	require.Equal(t, wire.ErrorUserCancelled, msg)

	for _, bad := range []string{``, `  `, `"x"`, `42`, `{"a":`} {
		_, err := decodeResponse("c", []byte(bad))
		var te *TransportError
		require.ErrorAs(t, err, &te, bad)
		require.Equal(t, KindMalformed, te.Kind, bad)
	}
}

func TestUnavailableFailsEveryCall(t *testing.T) {
	t.Parallel()

	var tr Transport = Unavailable{Reason: "no bridge configured"}
	require.False(t, tr.Available())

	_, err := tr.Call(context.Background(), "folder.pick", nil)
	require.True(t, IsUnavailable(err))
	require.Contains(t, err.Error(), "no bridge configured")

	cancel := tr.Subscribe("project.status", func(json.RawMessage) {})
	cancel()
	require.NoError(t, tr.Close())
}

func TestCallJSONMalformedBody(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	l.Handle("folder.pick", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"folders":"not-a-list"}`), nil
	})

	var resp struct {
		Folders []string `json:"folders"`
	}
	err := CallJSON(context.Background(), l, "folder.pick", nil, &resp)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, KindMalformed, te.Kind)

	err = CallJSON(context.Background(), nil, "folder.pick", nil, &resp)
	require.True(t, IsUnavailable(err))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "runtty",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestTokenExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	expired, _ := tokenExpired(signedToken(t, now.Add(-time.Minute)), now)
	require.True(t, expired)

	expired, exp := tokenExpired(signedToken(t, now.Add(time.Hour)), now)
	require.False(t, expired)
	require.WithinDuration(t, now.Add(time.Hour), exp, time.Second)

	expired, _ = tokenExpired("opaque-token", now)
	require.False(t, expired)
}

func TestOpenWithoutBridgeIsUnavailable(t *testing.T) {
	t.Parallel()

	tr := Open(SocketOptions{})
	require.IsType(t, Unavailable{}, tr)
	require.False(t, tr.Available())
}

func TestDialRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	_, err := Dial(SocketOptions{
		ServerURL: "http://127.0.0.1:1",
		Token:     signedToken(t, time.Now().Add(-time.Hour)),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "expired")

	tr := Open(SocketOptions{
		ServerURL: "http://127.0.0.1:1",
		Token:     signedToken(t, time.Now().Add(-time.Hour)),
	})
	require.False(t, tr.Available())
}

func TestAckBody(t *testing.T) {
	t.Parallel()

	raw, err := ackBody([]any{map[string]any{"status": "running"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"running"}`, string(raw))

	raw, err = ackBody([]any{`{"status":"stopped"}`})
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"stopped"}`, string(raw))

	_, err = ackBody(nil)
	require.Error(t, err)

	_, err = ackBody([]any{nil})
	require.Error(t, err)
}

func TestPayloadArg(t *testing.T) {
	t.Parallel()

	data, err := payloadArg(nil)
	require.NoError(t, err)
	require.Empty(t, data)

	data, err = payloadArg([]byte(`{"path":"/ws/a","command":0}`))
	require.NoError(t, err)
	require.Equal(t, "/ws/a", data["path"])

	_, err = payloadArg([]byte(`[1]`))
	require.Error(t, err)
}
