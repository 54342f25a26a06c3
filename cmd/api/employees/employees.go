package employees

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/mark3748/hwtrack-go/cmd/api/app"
)

// JobStatus is an employee's employment state.
type JobStatus string

const (
	JobActive   JobStatus = "Active"
	JobDeparted JobStatus = "Departed"
	JobRetired  JobStatus = "Retired"
)

// WorkStyle is an employee's work arrangement; it feeds the asset assignment
// location policy.
type WorkStyle string

const (
	WorkOnsite WorkStyle = "Onsite"
	WorkRemote WorkStyle = "Remote"
	WorkHybrid WorkStyle = "Hybrid"
)

// Employee represents a person assets can be assigned to.
type Employee struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role,omitempty"`
	JobStatus      JobStatus `json:"job_status"`
	WorkStyle      WorkStyle `json:"work_style"`
	CurrentAddress *string   `json:"current_address,omitempty"`
	HomeAddress    *string   `json:"home_address,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func validJobStatus(s JobStatus) bool {
	return s == JobActive || s == JobDeparted || s == JobRetired
}

func validWorkStyle(s WorkStyle) bool {
	return s == WorkOnsite || s == WorkRemote || s == WorkHybrid
}

// ValidEmail validates basic email format.
func ValidEmail(e string) bool {
	if e == "" {
		return false
	}
	_, err := mail.ParseAddress(e)
	return err == nil
}

const selectEmployee = `select id::text, name, email, coalesce(role,'viewer'), job_status, work_style, current_address, home_address, created_at, updated_at from employees`

// List returns employees, optionally only those assignable to assets entering
// use (Active job status). The assignable filter exists for the presentation
// layer; the lifecycle core itself does not enforce it.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := selectEmployee
		args := []any{}
		if c.Query("assignable") == "true" {
			q += ` where job_status='Active'`
		}
		q += ` order by name`
		rows, err := a.DB.Query(c.Request.Context(), q, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer rows.Close()
		out := []Employee{}
		for rows.Next() {
			var e Employee
			if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.JobStatus, &e.WorkStyle,
				&e.CurrentAddress, &e.HomeAddress, &e.CreatedAt, &e.UpdatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			out = append(out, e)
		}
		c.JSON(http.StatusOK, out)
	}
}

type createEmployeeReq struct {
	Name           string    `json:"name" binding:"required"`
	Email          string    `json:"email" binding:"required"`
	Role           string    `json:"role"`
	JobStatus      JobStatus `json:"job_status" binding:"required"`
	WorkStyle      WorkStyle `json:"work_style" binding:"required"`
	CurrentAddress *string   `json:"current_address"`
	HomeAddress    *string   `json:"home_address"`
}

// Create inserts an employee.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createEmployeeReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if !ValidEmail(in.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
			return
		}
		if !validJobStatus(in.JobStatus) || !validWorkStyle(in.WorkStyle) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_enum"})
			return
		}
		// An active employee needs a current address; assignment policy and
		// shipping both depend on it.
		if in.JobStatus == JobActive && (in.CurrentAddress == nil || *in.CurrentAddress == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "current_address_required"})
			return
		}
		if in.Role == "" {
			in.Role = "viewer"
		}
		const q = `
			insert into employees (name, email, role, job_status, work_style, current_address, home_address)
			values ($1, lower($2), $3, $4, $5, $6, $7)
			returning id::text, name, email, coalesce(role,'viewer'), job_status, work_style, current_address, home_address, created_at, updated_at`
		var e Employee
		if err := a.DB.QueryRow(c.Request.Context(), q, in.Name, in.Email, in.Role,
			in.JobStatus, in.WorkStyle, in.CurrentAddress, in.HomeAddress).
			Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.JobStatus, &e.WorkStyle,
				&e.CurrentAddress, &e.HomeAddress, &e.CreatedAt, &e.UpdatedAt); err != nil {
			if strings.Contains(err.Error(), "duplicate") {
				c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// Get returns an employee by id.
func Get(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var e Employee
		if err := a.DB.QueryRow(c.Request.Context(), selectEmployee+` where id=$1`, c.Param("id")).
			Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.JobStatus, &e.WorkStyle,
				&e.CurrentAddress, &e.HomeAddress, &e.CreatedAt, &e.UpdatedAt); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// Update modifies fields on an employee.
func Update(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Name           *string    `json:"name"`
			Email          *string    `json:"email"`
			Role           *string    `json:"role"`
			JobStatus      *JobStatus `json:"job_status"`
			WorkStyle      *WorkStyle `json:"work_style"`
			CurrentAddress *string    `json:"current_address"`
			HomeAddress    *string    `json:"home_address"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		set := []string{"updated_at=now()"}
		args := []any{}
		idx := 1
		if in.Name != nil {
			set = append(set, fmt.Sprintf("name=$%d", idx))
			args = append(args, *in.Name)
			idx++
		}
		if in.Email != nil {
			if !ValidEmail(*in.Email) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
				return
			}
			set = append(set, fmt.Sprintf("email=lower($%d)", idx))
			args = append(args, *in.Email)
			idx++
		}
		if in.Role != nil {
			set = append(set, fmt.Sprintf("role=$%d", idx))
			args = append(args, *in.Role)
			idx++
		}
		if in.JobStatus != nil {
			if !validJobStatus(*in.JobStatus) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_enum"})
				return
			}
			set = append(set, fmt.Sprintf("job_status=$%d", idx))
			args = append(args, *in.JobStatus)
			idx++
		}
		if in.WorkStyle != nil {
			if !validWorkStyle(*in.WorkStyle) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_enum"})
				return
			}
			set = append(set, fmt.Sprintf("work_style=$%d", idx))
			args = append(args, *in.WorkStyle)
			idx++
		}
		if in.CurrentAddress != nil {
			set = append(set, fmt.Sprintf("current_address=nullif($%d,'')", idx))
			args = append(args, *in.CurrentAddress)
			idx++
		}
		if in.HomeAddress != nil {
			set = append(set, fmt.Sprintf("home_address=nullif($%d,'')", idx))
			args = append(args, *in.HomeAddress)
			idx++
		}
		if len(set) == 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields"})
			return
		}
		q := fmt.Sprintf("update employees set %s where id=$%d", strings.Join(set, ", "), idx)
		args = append(args, c.Param("id"))
		tag, err := a.DB.Exec(c.Request.Context(), q, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if tag.RowsAffected() == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		Get(a)(c)
	}
}

// Delete removes an employee. Employees with assets still assigned cannot be
// removed; unassign the hardware first.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var n int
		if err := a.DB.QueryRow(c.Request.Context(),
			`select count(*) from assets where assigned_to_employee_id=$1`, id).Scan(&n); err == nil && n > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "employee has assigned assets"})
			return
		}
		tag, err := a.DB.Exec(c.Request.Context(), `delete from employees where id=$1`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if tag.RowsAffected() == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
