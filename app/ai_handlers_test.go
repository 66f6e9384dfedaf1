package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/auth"
	"github.com/gin-gonic/gin"
)

// aiRouter registers handler behind injected claims, standing in for the auth
// middleware.
func aiRouter(path string, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(path, func(c *gin.Context) {
		ctx := auth.WithClaims(c.Request.Context(), &auth.Claims{Subject: "auth0|alice"})
		c.Request = c.Request.WithContext(ctx)
		handler(c)
	})
	return r
}

func postJSONBody(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func fullUserRow(tier models.Tier, used int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"subscription_tier", "subscription_status", "stripe_customer_id",
		"stripe_subscription_id", "ai_usage_count", "last_usage_reset",
	}).AddRow(string(tier), "active", "cus_1", "sub_1", used, monthStartUTC(time.Now()))
}

func expectGateUser(mock sqlmock.Sqlmock, tier models.Tier, used int) {
	mock.ExpectQuery("SELECT subscription_tier, subscription_status").
		WithArgs("auth0|alice").
		WillReturnRows(fullUserRow(tier, used))
}

func expectQuotaPass(mock sqlmock.Sqlmock, tier models.Tier, used int) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_tier, ai_usage_count").
		WithArgs("auth0|alice").
		WillReturnRows(userRow(tier, used, monthStartUTC(time.Now())))
	mock.ExpectCommit()
}

// A free user with an exhausted counter asking for a paid feature is told the
// feature is missing from their plan, not that their quota ran out.
func TestGateEntitlementDenialBeatsQuotaDenial(t *testing.T) {
	mock := newMockDB(t)
	expectGateUser(mock, models.TierFree, 5)

	router := aiRouter("/api/documents/analyze", AnalyzeDocument)
	resp := postJSONBody(t, router, "/api/documents/analyze", gin.H{
		"document_name": "arrest-report.pdf",
		"content":       "...",
	})

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", resp.Code, resp.Body.String())
	}
	var body struct {
		Error        string `json:"error"`
		RequiredTier string `json:"required_tier"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Error != "plan does not include this feature" {
		t.Fatalf("error = %q, want feature denial", body.Error)
	}
	if body.RequiredTier != "basic" {
		t.Fatalf("required_tier = %q, want basic", body.RequiredTier)
	}
}

func TestGateQuotaDenial(t *testing.T) {
	mock := newMockDB(t)
	expectGateUser(mock, models.TierBasic, 100)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_tier, ai_usage_count").
		WithArgs("auth0|alice").
		WillReturnRows(userRow(models.TierBasic, 100, monthStartUTC(time.Now())))
	mock.ExpectRollback()

	router := aiRouter("/api/documents/analyze", AnalyzeDocument)
	resp := postJSONBody(t, router, "/api/documents/analyze", gin.H{
		"document_name": "arrest-report.pdf",
		"content":       "...",
	})

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d body=%s", resp.Code, resp.Body.String())
	}
	var body struct {
		Error string `json:"error"`
		Limit int    `json:"limit"`
		Used  int    `json:"used"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Error != "quota exceeded" || body.Limit != 100 || body.Used != 100 {
		t.Fatalf("unexpected quota denial body: %+v", body)
	}
}

func TestSimulatorRequiresPremium(t *testing.T) {
	mock := newMockDB(t)
	expectGateUser(mock, models.TierBasic, 0)

	router := aiRouter("/api/simulator", SimulatorTurn)
	resp := postJSONBody(t, router, "/api/simulator", gin.H{
		"scenario":       "bail hearing",
		"user_statement": "Your honor, I request release on recognizance.",
	})

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", resp.Code, resp.Body.String())
	}
	var body struct {
		RequiredTier string `json:"required_tier"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body.RequiredTier != "premium" {
		t.Fatalf("required_tier = %q, want premium", body.RequiredTier)
	}
}

func TestAnalyzeDocumentSavesAndConsumes(t *testing.T) {
	prev := llmc
	llmc = newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody(`{"ai_summary":"Warrantless search at 2am."}`)))
	})
	t.Cleanup(func() { llmc = prev })

	mock := newMockDB(t)
	expectGateUser(mock, models.TierBasic, 10)
	expectQuotaPass(mock, models.TierBasic, 10)
	mock.ExpectQuery("INSERT INTO analyzed_documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("doc-1", time.Now()))
	mock.ExpectExec("UPDATE users").
		WithArgs("auth0|alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := aiRouter("/api/documents/analyze", AnalyzeDocument)
	resp := postJSONBody(t, router, "/api/documents/analyze", gin.H{
		"document_name": "arrest-report.pdf",
		"content":       "Officers entered without a warrant.",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	var body struct {
		Document struct {
			Summary string `json:"summary"`
			Status  string `json:"status"`
		} `json:"document"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Document.Status != models.AnalysisCompleted {
		t.Fatalf("status = %q, want completed", body.Document.Status)
	}
	if body.Document.Summary != "Warrantless search at 2am." {
		t.Fatalf("summary = %q", body.Document.Summary)
	}
}

// Provider quota exhaustion saves a degraded row, returns success, and does
// not burn user quota.
func TestAnalyzeDocumentDegradedOnProviderQuota(t *testing.T) {
	prev := llmc
	llmc = newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	})
	t.Cleanup(func() { llmc = prev })

	mock := newMockDB(t)
	expectGateUser(mock, models.TierBasic, 10)
	expectQuotaPass(mock, models.TierBasic, 10)
	// Degraded save only; no usage increment follows.
	mock.ExpectQuery("INSERT INTO analyzed_documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("doc-2", time.Now()))

	router := aiRouter("/api/documents/analyze", AnalyzeDocument)
	resp := postJSONBody(t, router, "/api/documents/analyze", gin.H{
		"document_name": "bodycam-log.pdf",
		"file_url":      "https://bucket.s3.amazonaws.com/auth0|alice/x.pdf",
		"content":       "...",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 degraded, got %d body=%s", resp.Code, resp.Body.String())
	}
	var body struct {
		Degraded bool `json:"degraded"`
		Document struct {
			Status  string `json:"status"`
			FileURL string `json:"file_url"`
		} `json:"document"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Degraded {
		t.Fatalf("expected degraded flag, body=%s", resp.Body.String())
	}
	if body.Document.Status != models.AnalysisIncomplete {
		t.Fatalf("status = %q, want incomplete", body.Document.Status)
	}
	if body.Document.FileURL == "" {
		t.Fatalf("degraded save must keep the uploaded artifact reference")
	}
}

func TestCaseStrategyProviderAuthFailure(t *testing.T) {
	prev := llmc
	llmc = newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})
	t.Cleanup(func() { llmc = prev })

	mock := newMockDB(t)
	expectGateUser(mock, models.TierPremium, 0)
	expectQuotaPass(mock, models.TierPremium, 0)

	router := aiRouter("/api/strategy", CaseStrategy)
	resp := postJSONBody(t, router, "/api/strategy", gin.H{
		"case_summary": "Traffic stop escalated to vehicle search.",
	})

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for provider auth failure, got %d", resp.Code)
	}
}

func TestGenerateDocumentFreeText(t *testing.T) {
	prev := llmc
	llmc = newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("MOTION TO SUPPRESS\n\nComes now the defendant...")))
	})
	t.Cleanup(func() { llmc = prev })

	mock := newMockDB(t)
	expectGateUser(mock, models.TierBasic, 1)
	expectQuotaPass(mock, models.TierBasic, 1)
	mock.ExpectQuery("INSERT INTO generated_documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("gen-1", time.Now()))
	mock.ExpectExec("UPDATE users").
		WithArgs("auth0|alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := aiRouter("/api/documents/generate", GenerateDocument)
	resp := postJSONBody(t, router, "/api/documents/generate", gin.H{
		"document_type": "motion to suppress",
		"details":       "Evidence from a warrantless search.",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	var body struct {
		Document struct {
			Body string `json:"body"`
		} `json:"document"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Document.Body == "" {
		t.Fatalf("expected drafted document body")
	}
}

func TestAnalyzeDocumentRejectsMissingFields(t *testing.T) {
	mock := newMockDB(t)
	expectGateUser(mock, models.TierBasic, 0)
	expectQuotaPass(mock, models.TierBasic, 0)

	router := aiRouter("/api/documents/analyze", AnalyzeDocument)
	resp := postJSONBody(t, router, "/api/documents/analyze", gin.H{
		"document_name": "no-content.pdf",
	})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
