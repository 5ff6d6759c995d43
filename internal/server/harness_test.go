package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/export"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/photos"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	testUserName = "operador"
	testPassword = "segredo"
)

type testAPI struct {
	server     *httptest.Server
	handler    http.Handler
	tires      *tires.Service
	dispatcher *realtime.Dispatcher
	files      afero.Fs
	token      string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "api.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})

	recorder := metrics.NewRecorder()
	tireService, err := tires.NewService(tires.ServiceConfig{
		Database:   db,
		IDProvider: tires.NewUUIDProvider(),
		Observer:   recorder,
	})
	if err != nil {
		t.Fatalf("failed to construct tires service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	if _, err := userService.Create(context.Background(), testUserName, testPassword); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	exporter, err := export.NewExporter(export.Config{Source: tireService, Observer: recorder})
	if err != nil {
		t.Fatalf("failed to construct exporter: %v", err)
	}
	files := afero.NewMemMapFs()
	store := photos.NewLocalStoreWithFs(files, "http://photos.test")
	uploader, err := photos.NewUploader(photos.UploaderConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to construct uploader: %v", err)
	}
	dispatcher := realtime.NewDispatcher(0)

	handler, err := NewHTTPHandler(Dependencies{
		Users:             userService,
		Tokens:            tokenIssuer,
		TiresService:      tireService,
		Exporter:          exporter,
		Photos:            uploader,
		PhotoFiles:        store,
		Realtime:          dispatcher,
		Metrics:           recorder,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	token, _, err := tokenIssuer.IssueSessionToken(context.Background(), testUserName)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return &testAPI{
		server:     server,
		handler:    handler,
		tires:      tireService,
		dispatcher: dispatcher,
		files:      files,
		token:      token,
	}
}

type apiResponse struct {
	status  int
	headers http.Header
	body    []byte
}

func (r apiResponse) decode(t *testing.T, target any) {
	t.Helper()
	if err := json.Unmarshal(r.body, target); err != nil {
		t.Fatalf("failed to decode response %q: %v", r.body, err)
	}
}

func (r apiResponse) errorCode(t *testing.T) (string, string) {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	r.decode(t, &payload)
	return payload.Error, payload.Code
}

func (api *testAPI) do(t *testing.T, method, path string, payload any) apiResponse {
	t.Helper()
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, api.server.URL+path, body)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if api.token != "" {
		request.Header.Set("Authorization", "Bearer "+api.token)
	}
	return api.send(t, request)
}

func (api *testAPI) send(t *testing.T, request *http.Request) apiResponse {
	t.Helper()
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", request.Method, request.URL.Path, err)
	}
	defer response.Body.Close()
	content, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return apiResponse{status: response.StatusCode, headers: response.Header, body: content}
}

func (api *testAPI) createMonth(t *testing.T, period string) tires.Month {
	t.Helper()
	response := api.do(t, http.MethodPost, "/months", map[string]string{"periodo": period})
	if response.status != http.StatusCreated {
		t.Fatalf("unexpected create month status %d: %s", response.status, response.body)
	}
	var month tires.Month
	response.decode(t, &month)
	return month
}

func (api *testAPI) createTire(t *testing.T, monthID string) tires.Tire {
	t.Helper()
	response := api.do(t, http.MethodPost, "/months/"+monthID+"/tires", nil)
	if response.status != http.StatusCreated {
		t.Fatalf("unexpected create tire status %d: %s", response.status, response.body)
	}
	var tire tires.Tire
	response.decode(t, &tire)
	return tire
}
