package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authmodels "realreview/internal/auth/models"
	"realreview/internal/geocoding"
	"realreview/internal/image/models"
	"realreview/internal/platform/config"
	dErrors "realreview/pkg/domain-errors"
	"realreview/pkg/testutil"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{7}, 32)...)

type knownAddresses map[string]*geocoding.Location

func (k knownAddresses) Resolve(_ context.Context, address string) (*geocoding.Location, error) {
	if loc, ok := k[address]; ok {
		return loc, nil
	}
	return nil, geocoding.NewProviderError(geocoding.ErrorNotFound, "test", "no results", nil)
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:            "test",
			RequestTimeout: 5 * time.Second,
			MetricsToken:   "ops-token",
		},
		Auth: config.AuthConfig{
			JWTSigningKey:   "test-signing-key",
			Issuer:          "realreview-test",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Upload:    config.UploadConfig{Dir: dir, MaxSize: 1 << 20},
		Geocoding: config.GeocodingConfig{Timeout: time.Second},
		RateLimit: config.RateLimitConfig{LoginRPS: 100, LoginBurst: 100},
	}
}

type client struct {
	t       *testing.T
	handler http.Handler
}

func (c client) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(c.handler, req)
}

func (c client) login(email, pw string) *authmodels.TokenPair {
	rr := c.do(testutil.NewJSONRequest(c.t, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": pw}), "")
	require.Equal(c.t, http.StatusOK, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[authmodels.TokenPair](c.t, rr)
}

func newTestApp(t *testing.T) (*App, client) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	geo := knownAddresses{
		"221B Baker Street": {FormattedAddress: "221B Baker St, London NW1 6XE, UK", Latitude: 51.5238, Longitude: -0.1586},
	}

	a, err := New(context.Background(), testConfig("/uploads"), logger,
		WithFs(afero.NewMemMapFs()),
		WithGeocoder(geo),
		WithRegistry(reg, reg),
		WithHashCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, client{t: t, handler: a.Handler}
}

func TestImageLifecycle(t *testing.T) {
	a, c := newTestApp(t)

	var user, admin *authmodels.TokenPair
	var image models.ImageResponse

	testutil.Given(t, "a registered user and an admin", func(t *testing.T) {
		rr := c.do(testutil.NewJSONRequest(t, http.MethodPost, "/auth/register",
			map[string]string{"email": "buyer@example.com", "password": "password123"}), "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		user = c.login("buyer@example.com", "password123")

		_, created, err := a.Auth.CreateAdmin(context.Background(), "admin@example.com", "adminpass123")
		require.NoError(t, err)
		require.True(t, created)
		admin = c.login("admin@example.com", "adminpass123")
	})

	testutil.When(t, "the user uploads a photo of a real address", func(t *testing.T) {
		req := testutil.NewMultipartRequest(t, http.MethodPost, "/images/upload",
			map[string]string{"location": "221B Baker Street"}, "file", "front.png", pngBytes)
		rr := c.do(req, user.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := testutil.UnmarshalResponse[models.UploadResponse](t, rr)
		image = *resp.Image
		assert.Equal(t, "221B Baker St, London NW1 6XE, UK", image.Location)
		assert.Equal(t, models.StatusPending, image.Status)
	})

	testutil.Then(t, "it is not public until an admin approves it", func(t *testing.T) {
		rr := c.do(testutil.NewRequest(t, http.MethodGet, "/images/public"), "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, "[]", rr.Body.String())

		rr = c.do(testutil.NewRequest(t, http.MethodPost, "/images/"+image.ID+"/approve"), user.AccessToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = c.do(testutil.NewRequest(t, http.MethodGet, "/admin/pending-images"), admin.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code)
		pending := *testutil.UnmarshalResponse[[]models.ImageResponse](t, rr)
		require.Len(t, pending, 1)

		rr = c.do(testutil.NewRequest(t, http.MethodPost, "/images/"+image.ID+"/approve"), admin.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = c.do(testutil.NewRequest(t, http.MethodGet, "/images/public?location=221B+Baker+St,+London+NW1+6XE,+UK"), "")
		require.Equal(t, http.StatusOK, rr.Code)
		public := *testutil.UnmarshalResponse[[]models.ImageResponse](t, rr)
		require.Len(t, public, 1)
		assert.Equal(t, image.ID, public[0].ID)
	})

	testutil.Then(t, "ratings from both accounts average out", func(t *testing.T) {
		rr := c.do(testutil.NewRequest(t, http.MethodPost, "/images/"+image.ID+"/rate?rating=4"), user.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		rr = c.do(testutil.NewRequest(t, http.MethodPost, "/images/"+image.ID+"/rate?rating=2"), admin.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		rr = c.do(testutil.NewRequest(t, http.MethodPost, "/images/"+image.ID+"/rate?rating=7"), user.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = c.do(testutil.NewRequest(t, http.MethodGet, "/images/"+image.ID+"/details"), "")
		require.Equal(t, http.StatusOK, rr.Code)
		details := testutil.UnmarshalResponse[models.ImageResponse](t, rr)
		assert.InDelta(t, 3.0, details.AverageRating, 1e-9)
		assert.Equal(t, 2, details.RatingCount)
	})

	testutil.Then(t, "the file is served and the history is recorded", func(t *testing.T) {
		rr := c.do(testutil.NewRequest(t, http.MethodGet, image.URL), "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, pngBytes, rr.Body.Bytes())

		rr = c.do(testutil.NewRequest(t, http.MethodGet, "/admin/images/"+image.ID+"/history"), admin.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code)
		history := *testutil.UnmarshalResponse[[]map[string]any](t, rr)
		actions := make([]any, 0, len(history))
		for _, ev := range history {
			actions = append(actions, ev["action"])
		}
		assert.Equal(t, []any{"uploaded", "approved", "rated", "rated"}, actions)
	})
}

func TestUploadWithUnknownAddressStoresNothing(t *testing.T) {
	a, c := newTestApp(t)
	_, err := a.Auth.Register(context.Background(), &authmodels.RegisterRequest{
		CredentialsRequest: authmodels.CredentialsRequest{Email: "seller@example.com", Password: "password123"},
	})
	require.NoError(t, err)
	tokens := c.login("seller@example.com", "password123")

	req := testutil.NewMultipartRequest(t, http.MethodPost, "/images/upload",
		map[string]string{"location": "1 Nowhere Lane"}, "file", "house.png", pngBytes)
	rr := c.do(req, tokens.AccessToken)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = c.do(testutil.NewRequest(t, http.MethodGet, "/images/my"), tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	_, c := newTestApp(t)
	rr := c.do(testutil.NewJSONRequest(t, http.MethodPost, "/auth/register",
		map[string]string{"email": "leaver@example.com", "password": "password123"}), "")
	require.Equal(t, http.StatusOK, rr.Code)
	tokens := c.login("leaver@example.com", "password123")

	rr = c.do(testutil.NewRequest(t, http.MethodGet, "/auth/me"), tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = c.do(testutil.NewRequest(t, http.MethodPost, "/auth/logout"), tokens.AccessToken)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = c.do(testutil.NewRequest(t, http.MethodGet, "/auth/me"), tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	_, c := newTestApp(t)

	rr := c.do(testutil.NewRequest(t, http.MethodGet, "/health"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	testutil.AssertJSONContains(t, rr, "status", "ok")

	rr = c.do(testutil.NewRequest(t, http.MethodGet, "/metrics"), "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := testutil.NewRequest(t, http.MethodGet, "/metrics")
	req.Header.Set("X-Admin-Token", "ops-token")
	rr = c.do(req, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "realreview_http_requests_total")

	rr = c.do(testutil.NewRequest(t, http.MethodGet, "/images/my"), "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPublicListingRejectsOverflowingPage(t *testing.T) {
	_, c := newTestApp(t)

	rr := c.do(testutil.NewRequest(t, http.MethodGet, "/images/public?page=184467440737095516&size=100"), "")
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
}

func TestRunStopsWithContext(t *testing.T) {
	a, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
