package integration

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"captcha/internal/api"
	"captcha/internal/captcha"
	"captcha/internal/challenge"
	"captcha/internal/models"
	"captcha/internal/ratelimit"
	"captcha/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests that exercise the entire system end-to-end

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	server *httptest.Server
	clock  *clock
	store  *session.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := models.NewDefaultConfig()
	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	store := session.NewMemoryStore(cfg.Session.TTL, 0)
	t.Cleanup(func() { store.Close() })

	bucket, err := ratelimit.NewMemoryBucket(ratelimit.BucketConfig{
		Capacity:       cfg.RateLimit.Capacity,
		RefillTokens:   cfg.RateLimit.RefillTokens,
		RefillInterval: cfg.RateLimit.RefillInterval,
	}, ratelimit.WithClock(clk.Now))
	require.NoError(t, err)

	generator, err := challenge.NewGenerator(challenge.OptionsFromConfig(cfg.Captcha))
	require.NoError(t, err)

	service := captcha.NewService(bucket, generator, store)
	handlers := api.NewHandlers(service,
		api.WithSessionStore(store),
		api.WithLimiter(bucket),
		api.WithTestMode(true),
	)

	server := httptest.NewServer(api.SetupRoutes(handlers, cfg))
	t.Cleanup(server.Close)

	return &testEnv{server: server, clock: clk, store: store}
}

// newClient returns a client with its own cookie jar, i.e. its own session.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func (e *testEnv) generate(t *testing.T, c *http.Client, testMode bool) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/captcha/generate", nil)
	require.NoError(t, err)
	if testMode {
		req.Header.Set(models.TestModeHeader, "true")
	}
	return do(t, c, req)
}

func (e *testEnv) verify(t *testing.T, c *http.Client, body string, testMode bool) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/captcha/verify", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if testMode {
		req.Header.Set(models.TestModeHeader, "true")
	}
	return do(t, c, req)
}

func do(t *testing.T, c *http.Client, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func answerJSON(answer string) string {
	b, _ := json.Marshal(map[string]string{"captcha": answer})
	return string(b)
}

func TestIntegration_GenerateThenVerify(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	resp, body := env.generate(t, client, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text, ok := body["captchaText"].(string)
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), text)
	assert.Equal(t, "true", body["testMode"])

	raw, err := base64.StdEncoding.DecodeString(body["image"].(string))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	resp, body = env.verify(t, client, answerJSON(text), false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{
		"valid":   true,
		"message": models.MessageVerified,
	}, body)
}

func TestIntegration_NormalModeHidesAnswer(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	resp, body := env.generate(t, client, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body, 1)
	assert.Contains(t, body, "image")
}

func TestIntegration_ChallengeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	_, body := env.generate(t, client, true)
	text := body["captchaText"].(string)

	_, body = env.verify(t, client, answerJSON(text), false)
	assert.Equal(t, true, body["valid"])

	_, body = env.verify(t, client, answerJSON(text), true)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, models.MessageInvalid, body["message"])
	assert.Equal(t, true, body["testMode"])
	assert.Equal(t, text, body["userInput"])
	assert.Contains(t, body, "expectedCaptcha")
	assert.Nil(t, body["expectedCaptcha"])
}

func TestIntegration_WrongAnswerClearsChallenge(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	_, body := env.generate(t, client, true)
	text := body["captchaText"].(string)

	_, body = env.verify(t, client, answerJSON("WRONG1"), true)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, text, body["expectedCaptcha"])

	_, body = env.verify(t, client, answerJSON(text), false)
	assert.Equal(t, false, body["valid"])
}

func TestIntegration_NewGenerateReplacesPending(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	_, first := env.generate(t, client, true)
	_, second := env.generate(t, client, true)

	_, body := env.verify(t, client, answerJSON(first["captchaText"].(string)), true)
	if first["captchaText"] != second["captchaText"] {
		assert.Equal(t, false, body["valid"])
	}
	assert.Equal(t, second["captchaText"], body["expectedCaptcha"])
}

func TestIntegration_SessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	alice := newClient(t)
	bob := newClient(t)

	_, body := env.generate(t, alice, true)
	text := body["captchaText"].(string)

	_, body = env.verify(t, bob, answerJSON(text), true)
	assert.Equal(t, false, body["valid"])
	assert.Nil(t, body["expectedCaptcha"])

	_, body = env.verify(t, alice, answerJSON(text), false)
	assert.Equal(t, true, body["valid"])
}

func TestIntegration_VerifyWithoutGenerate(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	resp, body := env.verify(t, client, `{}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.Nil(t, body["userInput"])
	assert.Nil(t, body["expectedCaptcha"])
}

func TestIntegration_AnswerIsCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	var text string
	// Retry until the answer contains a letter so lowercasing changes it.
	for i := 0; i < 5; i++ {
		_, body := env.generate(t, client, true)
		text = body["captchaText"].(string)
		if regexp.MustCompile(`[A-Z]`).MatchString(text) {
			break
		}
	}
	if !regexp.MustCompile(`[A-Z]`).MatchString(text) {
		t.Skip("no alphabetic answer generated")
	}

	lower := bytes.ToLower([]byte(text))
	_, body := env.verify(t, client, answerJSON(string(lower)), false)
	assert.Equal(t, false, body["valid"])
}

func TestIntegration_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	for i := 0; i < 5; i++ {
		resp, _ := env.generate(t, client, false)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
		assert.Equal(t, strconv.Itoa(4-i), resp.Header.Get("X-RateLimit-Remaining"))
	}

	resp, body := env.generate(t, client, true)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"error": models.MessageRateLimited}, body)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// The bucket is global: another session is denied too.
	resp, _ = env.generate(t, newClient(t), false)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Verification is never limited.
	resp, _ = env.verify(t, client, answerJSON("ABC123"), false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// No partial refill before the interval boundary.
	env.clock.Advance(59 * time.Second)
	resp, _ = env.generate(t, client, false)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	env.clock.Advance(time.Second)
	for i := 0; i < 5; i++ {
		resp, _ := env.generate(t, client, false)
		require.Equal(t, http.StatusOK, resp.StatusCode, "after refill %d", i+1)
	}
	resp, _ = env.generate(t, client, false)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestIntegration_DeniedGenerateKeepsPendingChallenge(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	var text string
	for i := 0; i < 5; i++ {
		_, body := env.generate(t, client, true)
		text = body["captchaText"].(string)
	}

	resp, _ := env.generate(t, client, true)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	_, body := env.verify(t, client, answerJSON(text), false)
	assert.Equal(t, true, body["valid"])
}

func TestIntegration_MalformedVerifyLeavesChallenge(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	_, body := env.generate(t, client, true)
	text := body["captchaText"].(string)

	resp, body := env.verify(t, client, `{"captcha":`, false)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.ErrorCodeBadRequest, body["code"])

	_, body = env.verify(t, client, answerJSON(text), false)
	assert.Equal(t, true, body["valid"])
}

func TestIntegration_HealthReportsBucket(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	env.generate(t, client, false)

	resp, body := do(t, client, mustRequest(t, http.MethodGet, env.server.URL+"/health"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusHealthy, body["status"])
	metrics := body["metrics"].(map[string]interface{})
	assert.Equal(t, float64(4), metrics["tokens_remaining"])
}

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}
