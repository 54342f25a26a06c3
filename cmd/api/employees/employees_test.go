package employees

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apppkg "github.com/mark3748/hwtrack-go/cmd/api/app"
	authpkg "github.com/mark3748/hwtrack-go/cmd/api/auth"
)

type erows struct {
	data []Employee
	idx  int
}

func (r *erows) Close()                                       {}
func (r *erows) Err() error                                   { return nil }
func (r *erows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *erows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *erows) Next() bool                                   { return r.idx < len(r.data) }
func (r *erows) Values() ([]any, error)                       { return nil, nil }
func (r *erows) RawValues() [][]byte                          { return nil }
func (r *erows) Conn() *pgx.Conn                              { return nil }
func (r *erows) Scan(dest ...any) error {
	e := r.data[r.idx]
	r.idx++
	*(dest[0].(*string)) = e.ID
	*(dest[1].(*string)) = e.Name
	*(dest[2].(*string)) = e.Email
	*(dest[3].(*string)) = e.Role
	*(dest[4].(*JobStatus)) = e.JobStatus
	*(dest[5].(*WorkStyle)) = e.WorkStyle
	*(dest[6].(**string)) = e.CurrentAddress
	*(dest[7].(**string)) = e.HomeAddress
	*(dest[8].(*time.Time)) = e.CreatedAt
	*(dest[9].(*time.Time)) = e.UpdatedAt
	return nil
}

type erow struct {
	e   *Employee
	err error
}

func (r *erow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	rows := erows{data: []Employee{*r.e}}
	return rows.Scan(dest...)
}

type edb struct {
	employees   []Employee
	lastQuery   string
	assignedCnt int
	execTag     pgconn.CommandTag
}

func (db *edb) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	db.lastQuery = sql
	data := db.employees
	if strings.Contains(sql, "job_status='Active'") {
		var active []Employee
		for _, e := range data {
			if e.JobStatus == JobActive {
				active = append(active, e)
			}
		}
		data = active
	}
	return &erows{data: data}, nil
}

func (db *edb) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	db.lastQuery = sql
	if strings.Contains(sql, "count(*)") {
		return countRow{n: db.assignedCnt}
	}
	if len(db.employees) == 0 {
		return &erow{err: pgx.ErrNoRows}
	}
	return &erow{e: &db.employees[0]}
}

func (db *edb) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	db.lastQuery = sql
	return db.execTag, nil
}

func (db *edb) Begin(ctx context.Context) (pgx.Tx, error) { return nil, pgx.ErrTxClosed }

type countRow struct{ n int }

func (r countRow) Scan(dest ...any) error {
	*(dest[0].(*int)) = r.n
	return nil
}

func newTestApp(db *edb) *apppkg.App {
	gin.SetMode(gin.TestMode)
	cfg := apppkg.Config{Env: "test", TestBypassAuth: true}
	a := apppkg.NewApp(cfg, db, nil, nil, nil)
	auth := a.R.Group("/", authpkg.Middleware(a))
	auth.GET("/employees", List(a))
	auth.POST("/employees", Create(a))
	auth.GET("/employees/:id", Get(a))
	auth.PATCH("/employees/:id", Update(a))
	auth.DELETE("/employees/:id", Delete(a))
	return a
}

func doJSON(a *apppkg.App, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestListEmployees(t *testing.T) {
	db := &edb{employees: []Employee{
		{ID: "1", Name: "Alice", Email: "alice@example.com", JobStatus: JobActive, WorkStyle: WorkOnsite},
		{ID: "2", Name: "Bob", Email: "bob@example.com", JobStatus: JobDeparted, WorkStyle: WorkRemote},
	}}
	a := newTestApp(db)

	rr := doJSON(a, http.MethodGet, "/employees", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out []Employee
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || len(out) != 2 {
		t.Fatalf("body: %v %v", out, err)
	}
}

func TestListAssignableFiltersActive(t *testing.T) {
	db := &edb{employees: []Employee{
		{ID: "1", Name: "Alice", JobStatus: JobActive},
		{ID: "2", Name: "Bob", JobStatus: JobDeparted},
	}}
	a := newTestApp(db)

	rr := doJSON(a, http.MethodGet, "/employees?assignable=true", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out []Employee
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Name != "Alice" {
		t.Fatalf("expected only active employees, got %v", out)
	}
}

func TestCreateEmployeeValidation(t *testing.T) {
	a := newTestApp(&edb{})

	cases := []struct {
		name string
		body gin.H
	}{
		{"bad email", gin.H{"name": "X", "email": "not-an-email", "job_status": "Active", "work_style": "Onsite", "current_address": "1 Main St"}},
		{"bad enum", gin.H{"name": "X", "email": "x@example.com", "job_status": "Sabbatical", "work_style": "Onsite", "current_address": "1 Main St"}},
		{"active without address", gin.H{"name": "X", "email": "x@example.com", "job_status": "Active", "work_style": "Onsite"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(a, http.MethodPost, "/employees", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateEmployee(t *testing.T) {
	addr := "1 Main St"
	db := &edb{employees: []Employee{{
		ID: "1", Name: "Carol", Email: "carol@example.com", Role: "viewer",
		JobStatus: JobActive, WorkStyle: WorkHybrid, CurrentAddress: &addr,
	}}}
	a := newTestApp(db)

	rr := doJSON(a, http.MethodPost, "/employees", gin.H{
		"name": "Carol", "email": "carol@example.com",
		"job_status": "Active", "work_style": "Hybrid", "current_address": addr,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var out Employee
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || out.Name != "Carol" {
		t.Fatalf("body: %v %v", out, err)
	}
}

func TestUpdateEmployeeNoFields(t *testing.T) {
	a := newTestApp(&edb{})
	rr := doJSON(a, http.MethodPatch, "/employees/1", gin.H{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUpdateEmployeeNotFound(t *testing.T) {
	db := &edb{execTag: pgconn.NewCommandTag("UPDATE 0")}
	a := newTestApp(db)
	rr := doJSON(a, http.MethodPatch, "/employees/1", gin.H{"name": "New Name"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeleteEmployeeWithAssets(t *testing.T) {
	db := &edb{assignedCnt: 2}
	a := newTestApp(db)
	rr := doJSON(a, http.MethodDelete, "/employees/1", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 while assets are assigned, got %d", rr.Code)
	}
}

func TestDeleteEmployee(t *testing.T) {
	db := &edb{execTag: pgconn.NewCommandTag("DELETE 1")}
	a := newTestApp(db)
	rr := doJSON(a, http.MethodDelete, "/employees/1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestValidEmail(t *testing.T) {
	if !ValidEmail("a@b.co") {
		t.Error("a@b.co should be valid")
	}
	for _, bad := range []string{"", "plain", "@host", "user@"} {
		if ValidEmail(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}
