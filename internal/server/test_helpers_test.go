package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/auth"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/database"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSigningSecret = "test-signing-secret"

type testAPI struct {
	handler    http.Handler
	tokens     *auth.TokenIssuer
	affiliates *affiliates.Service
	users      *users.Service
	realtime   *RealtimeDispatcher
	metrics    *Metrics
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	affiliateService, err := affiliates.NewService(affiliates.ServiceConfig{
		Database:   db,
		IDProvider: affiliates.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build affiliate service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: affiliates.NewUUIDProvider(),
		HashCost:   bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	metrics := NewMetrics()
	handler, err := NewHTTPHandler(Dependencies{
		TokenIssuer:       issuer,
		TokenValidator:    validator,
		Users:             userService,
		Affiliates:        affiliateService,
		Logger:            zap.NewNop(),
		Realtime:          dispatcher,
		Metrics:           metrics,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return testAPI{
		handler:    handler,
		tokens:     issuer,
		affiliates: affiliateService,
		users:      userService,
		realtime:   dispatcher,
		metrics:    metrics,
	}
}

func (api testAPI) token(t *testing.T) string {
	t.Helper()
	token, _, err := api.tokens.IssueSessionToken(context.Background(), auth.Principal{
		UserID: "admin-1",
		Email:  "admin@example.com",
		Name:   "Admin",
		Role:   users.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (api testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch typed := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(typed))
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	api.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func (api testAPI) createAffiliate(t *testing.T, token, name, email string, status affiliates.Status) affiliates.Record {
	t.Helper()
	recorder := api.do(t, http.MethodPost, "/affiliates", token, affiliates.CreateRequest{
		Name:           name,
		Email:          email,
		Status:         status,
		InitialMetrics: affiliates.InitialMetrics{Revenue: 250, Clicks: 40, ConversionRate: 2.5},
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating %s, got %d: %s", email, recorder.Code, recorder.Body.String())
	}
	return decodeBody[affiliates.Record](t, recorder)
}
