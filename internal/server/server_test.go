package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/catalog"
	"github.com/ggonzalez94/defi-adapters/internal/host"
)

func echoAdapter() adapter.Adapter {
	textParam := adapter.Parameter{Name: "text", Type: adapter.TypeString, Description: "Text to echo", Required: true}
	say := func(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
		text := props.String("text")
		if text == "" {
			return adapter.Fail("text is required")
		}
		_ = opts.Notify(ctx, "echoing "+text)
		return adapter.OK(text)
	}
	return adapter.Adapter{
		Name:        "echo",
		Description: "Echo test adapter",
		Tools: []adapter.Tool{
			{Name: "say", Description: "Echo text", Parameters: []adapter.Parameter{adapter.ChainParam([]string{"sonic"}), textParam}},
			{Name: "shout", Description: "Echo text loudly", Parameters: []adapter.Parameter{adapter.ChainParam([]string{"sonic"}), textParam}},
		},
		Functions: map[string]adapter.Function{
			"say": say,
			"shout": func(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
				return adapter.OK(strings.ToUpper(props.String("text")))
			},
		},
	}
}

func newTestServer(t *testing.T, cfg Config, allow []string) (*Server, *Hub) {
	t.Helper()
	cat, err := catalog.New(allow, echoAdapter())
	require.NoError(t, err)
	hub := NewHub()
	h := host.New(host.NewProviders(nil), nil, host.WithSink(hub))
	return New(cfg, cat, h, hub), hub
}

func do(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) adapter.Result {
	t.Helper()
	var res adapter.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, Config{JWTSecret: "secret"}, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["adapters"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestInvoke(t *testing.T) {
	s, _ := newTestServer(t, Config{}, nil)

	rec := do(t, s, http.MethodPost, "/v1/adapters/echo/say", `{"chainName":"sonic","text":"gm"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, "gm", res.Data)

	rec = do(t, s, http.MethodPost, "/v1/adapters/echo/say", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, "function failures are results")
	res = decodeResult(t, rec)
	assert.False(t, res.Success)
	assert.True(t, res.IsError)
	assert.Equal(t, "text is required", res.Data)
}

func TestInvokeErrors(t *testing.T) {
	s, _ := newTestServer(t, Config{}, []string{"echo.say"})

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{"unknown adapter", "/v1/adapters/nope/say", "{}", http.StatusNotFound, "Adapter nope not found"},
		{"unknown function", "/v1/adapters/echo/whisper", "{}", http.StatusNotFound, "Function whisper not found in adapter echo"},
		{"blocked", "/v1/adapters/echo/shout", "{}", http.StatusForbidden, "Function echo.shout is blocked by the enabled functions policy"},
		{"bad json", "/v1/adapters/echo/say", "{", http.StatusBadRequest, "invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tc.path, tc.body, nil)
			require.Equal(t, tc.status, rec.Code)
			res := decodeResult(t, rec)
			assert.False(t, res.Success)
			assert.Contains(t, res.Data, tc.msg)
		})
	}

	rec := do(t, s, http.MethodGet, "/v1/adapters/echo/say", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, Config{JWTSecret: "secret"}, nil)
	body := `{"chainName":"sonic","text":"gm"}`

	rec := do(t, s, http.MethodPost, "/v1/adapters/echo/say", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := signToken(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "agent"})
	rec = do(t, s, http.MethodPost, "/v1/adapters/echo/say", body, map[string]string{"Authorization": "Bearer " + bad})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := signToken(t, "secret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "agent", "exp": time.Now().Add(-time.Minute).Unix()})
	rec = do(t, s, http.MethodPost, "/v1/adapters/echo/say", body, map[string]string{"Authorization": "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongAlg := signToken(t, "secret", jwt.SigningMethodHS512, jwt.MapClaims{"sub": "agent"})
	rec = do(t, s, http.MethodPost, "/v1/adapters/echo/say", body, map[string]string{"Authorization": "Bearer " + wrongAlg})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good := signToken(t, "secret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "agent", "exp": time.Now().Add(time.Hour).Unix()})
	rec = do(t, s, http.MethodPost, "/v1/adapters/echo/say", body, map[string]string{"Authorization": "Bearer " + good})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResult(t, rec).Success)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Config{RateLimit: 0.001, RateBurst: 1}, nil)
	rec := do(t, s, http.MethodGet, "/v1/tools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, "/v1/tools", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health checks are never limited
	rec = do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTools(t *testing.T) {
	s, _ := newTestServer(t, Config{}, []string{"echo.say"})

	rec := do(t, s, http.MethodGet, "/v1/tools?format=openai", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tools []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	require.Len(t, tools, 1, "blocked functions are not advertised")
	fn := tools[0]["function"].(map[string]any)
	assert.Equal(t, "echo__say", fn["name"])

	rec = do(t, s, http.MethodGet, "/v1/tools?adapter=echo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"adapter":"echo"`)

	rec = do(t, s, http.MethodGet, "/v1/tools?format=yaml", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/tools?adapter=nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationsStream(t *testing.T) {
	s, hub := newTestServer(t, Config{}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/notifications?adapter=echo"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/v1/adapters/echo/say", "application/json", strings.NewReader(`{"chainName":"sonic","text":"gm"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n host.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "echo", n.Adapter)
	assert.Equal(t, "say", n.Function)
	assert.Equal(t, "echoing gm", n.Message)
}

func TestHubFiltersByAdapterAndDropsWhenFull(t *testing.T) {
	hub := NewHub()
	aave := &subscriber{adapter: "aave", send: make(chan host.Notification, 1)}
	all := &subscriber{send: make(chan host.Notification, 1)}
	hub.add(aave)
	hub.add(all)

	hub.Publish(host.Notification{Adapter: "beets", Message: "first"})
	hub.Publish(host.Notification{Adapter: "aave", Message: "second"})

	require.Len(t, aave.send, 1)
	assert.Equal(t, "second", (<-aave.send).Message)
	require.Len(t, all.send, 1)
	assert.Equal(t, "first", (<-all.send).Message, "full buffer drops later messages")

	hub.remove(aave)
	assert.Equal(t, 1, hub.Subscribers())
}
