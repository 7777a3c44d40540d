package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-view-backend/internal/config"
	"github.com/tbourn/go-view-backend/internal/domain"
	"github.com/tbourn/go-view-backend/internal/services"
)

func newBrowseEngine(t *testing.T, admin string) (*gin.Engine, *services.BrowseService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:browsehttp_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.BrowseRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	svc := services.NewBrowseService(db, config.LedgerConfig{
		AdminUserID:     admin,
		DedupWindow:     24 * time.Hour,
		ClockSkewMax:    5 * time.Minute,
		DefaultPageSize: 20,
		MaxPageSize:     100,
	})

	r := gin.New()
	api := NewBrowseAPI(svc)
	r.GET("/api/v1/browses", api.ListBrowses)
	r.GET("/api/v1/browses/count", api.CountBrowses)
	return r, svc
}

func strptr(s string) *string { return &s }

func seedBrowse(t *testing.T, svc *services.BrowseService, owner *string, anon, target, ip string) {
	t.Helper()
	if _, err := svc.Report(context.Background(), services.ReportInput{
		UserID: owner, AnonymousID: anon, TargetID: target, IPAddress: ip,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func getJSON(t *testing.T, r *gin.Engine, path, callerID string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if callerID != "" {
		req.Header.Set("X-User-ID", callerID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return w.Code, body
}

func TestListBrowses_RequiresIdentity(t *testing.T) {
	r, _ := newBrowseEngine(t, "")
	code, body := getJSON(t, r, "/api/v1/browses", "")
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
	if body["code"] != ErrCodeUnauthorized {
		t.Fatalf("error code = %v", body["code"])
	}
}

func TestListBrowses_VisibilityAndMasking(t *testing.T) {
	r, svc := newBrowseEngine(t, "admin")
	seedBrowse(t, svc, strptr("u1"), "a1", "p1", "203.0.113.1")
	seedBrowse(t, svc, strptr("u2"), "a2", "p1", "203.0.113.2")

	code, body := getJSON(t, r, "/api/v1/browses?user=u2", "u1")
	if code != http.StatusOK {
		t.Fatalf("status = %d: %v", code, body)
	}
	if body["total"].(float64) != 1 {
		t.Fatalf("non-admin total = %v, want 1 (own row only)", body["total"])
	}
	item := body["items"].([]any)[0].(map[string]any)
	if item["ip_address"] != services.MaskedIP {
		t.Fatalf("ip = %v, want masked", item["ip_address"])
	}

	code, body = getJSON(t, r, "/api/v1/browses?user=u2", "admin")
	if code != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("admin filtered read: %d %v", code, body)
	}
	item = body["items"].([]any)[0].(map[string]any)
	if item["ip_address"] != "203.0.113.2" {
		t.Fatalf("admin ip = %v, want raw", item["ip_address"])
	}
}

func TestListBrowses_TimeRangeValidation(t *testing.T) {
	r, _ := newBrowseEngine(t, "")

	code, _ := getJSON(t, r, "/api/v1/browses?start_time=not-a-time", "u1")
	if code != http.StatusBadRequest {
		t.Fatalf("bad start_time status = %d", code)
	}

	code, _ = getJSON(t, r, "/api/v1/browses?start_time=2026-08-01T00:00:00Z", "u1")
	if code != http.StatusBadRequest {
		t.Fatalf("lone start_time status = %d", code)
	}
}

func TestCountBrowses_SingleAndBatch(t *testing.T) {
	r, svc := newBrowseEngine(t, "")
	for i := 0; i < 3; i++ {
		seedBrowse(t, svc, nil, fmt.Sprintf("a%d", i), "p1", "")
	}

	code, body := getJSON(t, r, "/api/v1/browses/count?target_id=p1", "u1")
	if code != http.StatusOK || body["count"].(float64) != 3 {
		t.Fatalf("single count: %d %v", code, body)
	}

	code, body = getJSON(t, r, "/api/v1/browses/count?target_id=p1,p9", "u1")
	if code != http.StatusOK {
		t.Fatalf("batch count status = %d", code)
	}
	counts := body["counts"].(map[string]any)
	if counts["p1"].(float64) != 3 || counts["p9"].(float64) != 0 {
		t.Fatalf("batch counts = %v", counts)
	}

	code, _ = getJSON(t, r, "/api/v1/browses/count", "u1")
	if code != http.StatusBadRequest {
		t.Fatalf("missing target_id status = %d", code)
	}
}
