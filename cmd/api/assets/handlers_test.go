package assets

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apppkg "github.com/mark3748/hwtrack-go/cmd/api/app"
	authpkg "github.com/mark3748/hwtrack-go/cmd/api/auth"
)

func newTestApp(t *testing.T, db *fakeDB) *apppkg.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := apppkg.Config{Env: "test", TestBypassAuth: true}
	a := apppkg.NewApp(cfg, db, nil, nil, nil)
	auth := a.R.Group("/", authpkg.Middleware(a))
	auth.GET("/assets", ListAssets(a))
	auth.POST("/assets", authpkg.RequireRole("agent"), CreateAsset(a))
	auth.GET("/assets/transitions", ListTransitions(a))
	auth.GET("/assets/:id", GetAsset(a))
	auth.PATCH("/assets/:id", authpkg.RequireRole("agent"), UpdateAsset(a))
	auth.DELETE("/assets/:id", authpkg.RequireRole("agent"), DeleteAsset(a))
	auth.GET("/assets/:id/history", GetAssetHistory(a))
	return a
}

func doJSON(t *testing.T, a *apppkg.App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env apppkg.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v (%s)", err, rr.Body.String())
	}
	if env.Error == nil {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
	return env.Error.Code
}

func TestCreateAssetEndpoint(t *testing.T) {
	db := &fakeDB{}
	a := newTestApp(t, db)

	rr := doJSON(t, a, http.MethodPost, "/assets", gin.H{
		"asset_tag": "HW-1000", "name": "Dell U2720Q", "category": "Monitor",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var out Asset
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status != StatusSetup || out.Location != LocationSetupShelf {
		t.Errorf("asset = %s/%s", out.Status, out.Location)
	}
	if len(db.history) != 1 || db.history[0].changedBy != "Test User" {
		t.Errorf("history = %+v", db.history)
	}
}

func TestCreateAssetEndpointBindingErrors(t *testing.T) {
	a := newTestApp(t, &fakeDB{})

	rr := doJSON(t, a, http.MethodPost, "/assets", gin.H{"asset_tag": "HW-1001"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "bad_request" {
		t.Errorf("code = %s", code)
	}
}

func TestUpdateAssetEndpointTransitionRejected(t *testing.T) {
	db := &fakeDB{asset: seedAsset(StatusInUse, LocationStorage)}
	a := newTestApp(t, db)

	rr := doJSON(t, a, http.MethodPatch, "/assets/"+db.asset.ID.String(), gin.H{
		"status": "UnderRepair",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	var env apppkg.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil || env.Error == nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Error.Code != "transition_rejected" {
		t.Errorf("code = %s", env.Error.Code)
	}
	if env.Error.FieldErrors["from"] != "InUse" || env.Error.FieldErrors["to"] != "UnderRepair" {
		t.Errorf("field errors = %v", env.Error.FieldErrors)
	}
}

func TestUpdateAssetEndpointValidation(t *testing.T) {
	db := &fakeDB{asset: seedAsset(StatusInUse, LocationStorage)}
	a := newTestApp(t, db)

	rr := doJSON(t, a, http.MethodPatch, "/assets/"+db.asset.ID.String(), gin.H{
		"status": "Retired", "retired_date": "2025-06-01",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "validation_failed" {
		t.Errorf("code = %s", code)
	}
}

func TestUpdateAssetEndpointConflict(t *testing.T) {
	db := &fakeDB{asset: seedAsset(StatusInUse, LocationStorage), updateConflict: true}
	a := newTestApp(t, db)

	rr := doJSON(t, a, http.MethodPatch, "/assets/"+db.asset.ID.String(), gin.H{
		"name": "renamed", "version": 1,
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "conflict" {
		t.Errorf("code = %s", code)
	}
}

func TestGetAssetEndpointNotFound(t *testing.T) {
	a := newTestApp(t, &fakeDB{})

	rr := doJSON(t, a, http.MethodGet, "/assets/"+uuid.NewString(), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "not_found" {
		t.Errorf("code = %s", code)
	}
}

func TestGetAssetEndpointBadID(t *testing.T) {
	a := newTestApp(t, &fakeDB{})
	rr := doJSON(t, a, http.MethodGet, "/assets/not-a-uuid", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDeleteAssetEndpointInvalidOperation(t *testing.T) {
	db := &fakeDB{asset: seedAsset(StatusInUse, LocationStorage)}
	a := newTestApp(t, db)

	rr := doJSON(t, a, http.MethodDelete, "/assets/"+db.asset.ID.String(), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "invalid_operation" {
		t.Errorf("code = %s", code)
	}
}

func TestTransitionsEndpoint(t *testing.T) {
	a := newTestApp(t, &fakeDB{})

	rr := doJSON(t, a, http.MethodGet, "/assets/transitions?from=InUse", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out struct {
		From    AssetStatus   `json:"from"`
		Allowed []AssetStatus `json:"allowed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.From != StatusInUse {
		t.Errorf("from = %s", out.From)
	}
	want := map[AssetStatus]bool{
		StatusSetup: true, StatusToBeDeployed: true, StatusToBeRepaired: true, StatusRetired: true,
	}
	if len(out.Allowed) != len(want) {
		t.Fatalf("allowed = %v", out.Allowed)
	}
	for _, s := range out.Allowed {
		if !want[s] {
			t.Errorf("unexpected target %s", s)
		}
	}
}

func TestTransitionsEndpointUnknownStatus(t *testing.T) {
	a := newTestApp(t, &fakeDB{})
	rr := doJSON(t, a, http.MethodGet, "/assets/transitions?from=Lost", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHistoryEndpointEmpty(t *testing.T) {
	db := &fakeDB{asset: seedAsset(StatusSetup, LocationSetupShelf)}
	a := newTestApp(t, db)

	rr := doJSON(t, a, http.MethodGet, "/assets/"+db.asset.ID.String()+"/history", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestCreateAssetRequiresRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := apppkg.Config{Env: "test", TestBypassAuth: true}
	a := apppkg.NewApp(cfg, &fakeDB{}, nil, nil, nil)
	a.R.POST("/assets", authpkg.Middleware(a), func(c *gin.Context) {
		c.Set("user", authpkg.AuthUser{ID: "viewer", Roles: []string{"viewer"}})
	}, authpkg.RequireRole("agent"), CreateAsset(a))

	rr := doJSON(t, a, http.MethodPost, "/assets", gin.H{
		"asset_tag": "HW-1", "name": "x", "category": "Laptop",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
