//
//
package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name          string
		authHeader    string
		query         string
		expectError   bool
		expectedToken string
	}{
		{name: "valid bearer token", authHeader: "Bearer test-token", expectedToken: "test-token"},
		{name: "query fallback", query: "?access_token=q-token", expectedToken: "q-token"},
		{name: "header wins over query", authHeader: "Bearer h-token", query: "?access_token=q-token", expectedToken: "h-token"},
		{name: "missing", expectError: true},
		{name: "basic scheme", authHeader: "Basic test-token", expectError: true},
		{name: "no space", authHeader: "Bearertest-token", expectError: true},
		{name: "empty token", authHeader: "Bearer ", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			token, err := extractToken(req)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedToken, token)
		})
	}
}

func TestRequire(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{SecretKey: testSecret})
	require.NoError(t, err)
	m := NewMiddleware(v)

	var subject string
	handler := m.Require(ScopeTelemetry)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	readOnly := validClaims()
	readOnly["scopes"] = []string{ScopeRead}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "valid", header: "Bearer " + signHS256(t, testSecret, validClaims()), wantStatus: http.StatusNoContent},
		{name: "missing", wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "bad signature", header: "Bearer " + signHS256(t, "x", validClaims()), wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "wrong scope", header: "Bearer " + signHS256(t, testSecret, readOnly), wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			req := httptest.NewRequest(http.MethodGet, "/api/telemetry", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode == "" {
				assert.Equal(t, "operator-1", subject)
				return
			}
			assert.Empty(t, subject)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body["result"])
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["correlationId"])
		})
	}
}

func TestClaimsContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, ClaimsFromContext(req.Context()))
	assert.Empty(t, SubjectFromContext(req.Context()))

	ctx := WithClaims(req.Context(), &Claims{Subject: "s", Scopes: []string{ScopeRead}})
	assert.Equal(t, "s", SubjectFromContext(ctx))
	assert.True(t, ClaimsFromContext(ctx).HasScope(ScopeRead))
	assert.False(t, ClaimsFromContext(ctx).HasScope(ScopeTelemetry))

	var nilClaims *Claims
	assert.False(t, nilClaims.HasScope(ScopeRead))
}
