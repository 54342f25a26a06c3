package assets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/microcosm-cc/bluemonday"

	app "github.com/mark3748/hwtrack-go/cmd/api/app"
)

// notePolicy strips all markup from free-text notes before storage.
var notePolicy = bluemonday.StrictPolicy()

// Service is the single write path for asset lifecycle mutation. Every status
// change goes through UpdateAsset (or CreateAsset for the initial transition),
// which validates against the rule table, applies rule side effects and the
// assignment policy, and appends one history entry in the same transaction as
// the asset write.
type Service struct {
	db app.DB
	// now is the clock used for auto-field stamps; injected so tests can
	// supply deterministic timestamps.
	now func() time.Time
}

// NewService creates an asset lifecycle service.
func NewService(db app.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// dateLayouts accepted for external date values, tried in order.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

// setDate normalizes one optional external date value onto dst, collecting a
// field error when it cannot be parsed.
func setDate(dst **time.Time, field string, value *string, fieldErrs map[string]string) {
	if value == nil {
		return
	}
	if *value == "" {
		*dst = nil
		return
	}
	t, err := parseDate(*value)
	if err != nil {
		fieldErrs[field] = "invalid date"
		return
	}
	*dst = &t
}

func sanitizeNote(note *string) string {
	if note == nil {
		return ""
	}
	return strings.TrimSpace(notePolicy.Sanitize(*note))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateAsset inserts a new asset. Creation is the initial transition into the
// chosen starting status (Setup when unset): the status rule's location and
// auto fields are applied and exactly one history entry is recorded.
func (s *Service) CreateAsset(ctx context.Context, req CreateAssetRequest, actor string) (*Asset, error) {
	status := req.Status
	if status == "" {
		status = StatusSetup
	}
	rule, ok := RuleFor(status)
	if !ok {
		return nil, newValidationError("status", "unknown status")
	}
	if !ValidCategory(req.Category) {
		return nil, newValidationError("category", "unknown category")
	}

	asset := &Asset{
		ID:           uuid.New(),
		AssetTag:     req.AssetTag,
		Name:         req.Name,
		Manufacturer: req.Manufacturer,
		Category:     req.Category,
		Status:       status,
		Location:     rule.Location,
	}

	fieldErrs := map[string]string{}
	setDate(&asset.PurchaseDate, "purchase_date", req.PurchaseDate, fieldErrs)
	setDate(&asset.WarrantyEndDate, "warranty_end_date", req.WarrantyEndDate, fieldErrs)
	setDate(&asset.DeploymentSetupDate, "deployment_setup_date", req.DeploymentSetupDate, fieldErrs)
	setDate(&asset.UnderRepairDate, "under_repair_date", req.UnderRepairDate, fieldErrs)
	setDate(&asset.RepairedDate, "repaired_date", req.RepairedDate, fieldErrs)
	setDate(&asset.RetiredDate, "retired_date", req.RetiredDate, fieldErrs)
	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	if req.AssignedToEmployeeID != nil && *req.AssignedToEmployeeID != "" {
		eid, err := uuid.Parse(*req.AssignedToEmployeeID)
		if err != nil {
			return nil, newValidationError("assigned_to_employee_id", "invalid id")
		}
		asset.AssignedToEmployeeID = &eid
	}

	now := s.now()
	s.applyAutoFields(asset, rule, now)
	if status == StatusInUse && asset.FirstInUseDate == nil {
		asset.FirstInUseDate = &now
	}

	note := sanitizeNote(req.Note)
	if note == "" {
		note = "Asset created"
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertAsset = `
		insert into assets (
			id, asset_tag, name, manufacturer, category, status, location,
			assigned_to_employee_id, purchase_date, warranty_end_date,
			deployment_setup_date, to_be_deployed_date, first_in_use_date,
			user_in_use_date, reported_to_repair_date, under_repair_date,
			repaired_date, retired_date, version
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,1)`
	if _, err := tx.Exec(ctx, insertAsset,
		asset.ID, asset.AssetTag, asset.Name, asset.Manufacturer, asset.Category,
		asset.Status, asset.Location, asset.AssignedToEmployeeID,
		asset.PurchaseDate, asset.WarrantyEndDate, asset.DeploymentSetupDate,
		asset.ToBeDeployedDate, asset.FirstInUseDate, asset.UserInUseDate,
		asset.ReportedToRepairDate, asset.UnderRepairDate, asset.RepairedDate,
		asset.RetiredDate,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTag
		}
		return nil, fmt.Errorf("insert asset: %w", err)
	}

	if err := s.appendHistory(ctx, tx, asset, actor, note, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	transitionsTotal.WithLabelValues(string(status), "accepted").Inc()
	return s.GetAsset(ctx, asset.ID)
}

// UpdateAsset applies a partial update, running the full transition pipeline
// when the requested status differs from the current one. Nothing is persisted
// unless the transition as a whole is accepted.
func (s *Service) UpdateAsset(ctx context.Context, id uuid.UUID, req UpdateAssetRequest, actor string) (*Asset, error) {
	cur, err := s.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := *cur
	if req.Name != nil {
		merged.Name = *req.Name
	}
	if req.Manufacturer != nil {
		merged.Manufacturer = req.Manufacturer
	}
	if req.Category != nil {
		if !ValidCategory(*req.Category) {
			return nil, newValidationError("category", "unknown category")
		}
		merged.Category = *req.Category
	}
	if req.AssignedToEmployeeID != nil {
		if *req.AssignedToEmployeeID == "" {
			merged.AssignedToEmployeeID = nil
		} else {
			eid, err := uuid.Parse(*req.AssignedToEmployeeID)
			if err != nil {
				return nil, newValidationError("assigned_to_employee_id", "invalid id")
			}
			merged.AssignedToEmployeeID = &eid
		}
	}

	fieldErrs := map[string]string{}
	setDate(&merged.PurchaseDate, "purchase_date", req.PurchaseDate, fieldErrs)
	setDate(&merged.WarrantyEndDate, "warranty_end_date", req.WarrantyEndDate, fieldErrs)
	setDate(&merged.DeploymentSetupDate, "deployment_setup_date", req.DeploymentSetupDate, fieldErrs)
	setDate(&merged.UnderRepairDate, "under_repair_date", req.UnderRepairDate, fieldErrs)
	setDate(&merged.RepairedDate, "repaired_date", req.RepairedDate, fieldErrs)
	setDate(&merged.RetiredDate, "retired_date", req.RetiredDate, fieldErrs)
	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	note := sanitizeNote(req.Note)
	now := s.now()

	statusChanged := req.Status != nil && *req.Status != cur.Status
	if statusChanged {
		to := *req.Status
		rule, ok := RuleFor(to)
		if !ok {
			return nil, newValidationError("status", "unknown status")
		}
		if !CanTransition(cur.Status, to) {
			transitionsTotal.WithLabelValues(string(to), "rejected").Inc()
			return nil, &TransitionError{From: cur.Status, To: to}
		}

		merged.Status = to
		merged.Location = rule.Location
		s.applyAutoFields(&merged, rule, now)
		if rule.UnassignsUser {
			// Forced unassignment wins over whatever the caller sent.
			merged.AssignedToEmployeeID = nil
		}
		if rule.RequiresNote && note == "" {
			return nil, newValidationError("note", "required for this status")
		}
		if err := s.checkRequiredFields(&merged, rule); err != nil {
			return nil, err
		}
		if to == StatusInUse && merged.AssignedToEmployeeID != nil {
			merged.Location = resolveAssignmentLocation(ctx, s.db, *merged.AssignedToEmployeeID, rule.Location)
		}
	}

	expectedVersion := cur.Version
	if req.Version != nil {
		expectedVersion = *req.Version
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// History goes in first so a committed asset write can never exist without
	// its ledger entry; an optimistic-concurrency loss rolls both back.
	if statusChanged {
		if note == "" {
			note = fmt.Sprintf("Status changed to %s", merged.Status)
		}
		if err := s.appendHistory(ctx, tx, &merged, actor, note, now); err != nil {
			return nil, err
		}
	}

	const updateAsset = `
		update assets set
			name=$2, manufacturer=$3, category=$4, status=$5, location=$6,
			assigned_to_employee_id=$7, purchase_date=$8, warranty_end_date=$9,
			deployment_setup_date=$10, to_be_deployed_date=$11,
			first_in_use_date=$12, user_in_use_date=$13,
			reported_to_repair_date=$14, under_repair_date=$15,
			repaired_date=$16, retired_date=$17,
			version=version+1, updated_at=now()
		where id=$1 and version=$18`
	tag, err := tx.Exec(ctx, updateAsset,
		merged.ID, merged.Name, merged.Manufacturer, merged.Category,
		merged.Status, merged.Location, merged.AssignedToEmployeeID,
		merged.PurchaseDate, merged.WarrantyEndDate, merged.DeploymentSetupDate,
		merged.ToBeDeployedDate, merged.FirstInUseDate, merged.UserInUseDate,
		merged.ReportedToRepairDate, merged.UnderRepairDate, merged.RepairedDate,
		merged.RetiredDate, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if statusChanged {
		transitionsTotal.WithLabelValues(string(merged.Status), "accepted").Inc()
	}
	return s.GetAsset(ctx, id)
}

// DeleteAsset removes a retired asset and its history. Any other status is an
// invalid operation.
func (s *Service) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	var status AssetStatus
	err := s.db.QueryRow(ctx, `select status from assets where id=$1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read asset: %w", err)
	}
	if status != StatusRetired {
		return ErrInvalidOperation
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `delete from asset_history where asset_id=$1`, id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if _, err := tx.Exec(ctx, `delete from assets where id=$1`, id); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return tx.Commit(ctx)
}

// History returns the append-only ledger for an asset, newest first.
func (s *Service) History(ctx context.Context, assetID uuid.UUID) ([]HistoryEntry, error) {
	const q = `
		select id, asset_id, status, location, changed_by, employee_id, note, created_at
		from asset_history where asset_id=$1 order by created_at desc`
	rows, err := s.db.Query(ctx, q, assetID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.AssetID, &h.Status, &h.Location,
			&h.ChangedBy, &h.EmployeeID, &h.Note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// GetAsset retrieves an asset with its assignment resolved.
func (s *Service) GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error) {
	row := s.db.QueryRow(ctx, selectAsset+` where a.id=$1`, id)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// ListAssets retrieves assets with filtering and pagination.
func (s *Service) ListAssets(ctx context.Context, filters AssetSearchFilters) (*AssetListResponse, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if filters.Query != "" {
		where = append(where, fmt.Sprintf(
			"(a.name ilike '%%'||$%d||'%%' or a.asset_tag ilike '%%'||$%d||'%%' or coalesce(a.manufacturer,'') ilike '%%'||$%d||'%%')",
			idx, idx, idx))
		args = append(args, filters.Query)
		idx++
	}
	if len(filters.Status) > 0 {
		ph := make([]string, len(filters.Status))
		for i, st := range filters.Status {
			ph[i] = fmt.Sprintf("$%d", idx)
			args = append(args, st)
			idx++
		}
		where = append(where, fmt.Sprintf("a.status in (%s)", strings.Join(ph, ",")))
	}
	if filters.Category != nil {
		where = append(where, fmt.Sprintf("a.category = $%d", idx))
		args = append(args, *filters.Category)
		idx++
	}
	if filters.AssignedTo != nil {
		where = append(where, fmt.Sprintf("a.assigned_to_employee_id = $%d", idx))
		args = append(args, *filters.AssignedTo)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "where " + strings.Join(where, " and ")
	}

	sortBy := "a.updated_at"
	switch filters.SortBy {
	case "name", "asset_tag", "status", "created_at", "updated_at":
		sortBy = "a." + filters.SortBy
	}
	sortOrder := "desc"
	if filters.SortOrder == "asc" {
		sortOrder = "asc"
	}

	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	offset := (filters.Page - 1) * filters.Limit

	var total int
	countQuery := fmt.Sprintf(`select count(*) from assets a %s`, whereClause)
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}

	query := fmt.Sprintf(`%s %s order by %s %s limit $%d offset $%d`,
		selectAsset, whereClause, sortBy, sortOrder, idx, idx+1)
	args = append(args, filters.Limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pages := int(math.Ceil(float64(total) / float64(filters.Limit)))
	return &AssetListResponse{Assets: assets, Total: total, Page: filters.Page, Limit: filters.Limit, Pages: pages}, nil
}

// applyAutoFields stamps the rule's auto date fields with the transition time.
func (s *Service) applyAutoFields(a *Asset, rule StatusRule, now time.Time) {
	for _, f := range rule.AutoFields {
		switch f {
		case AutoToBeDeployedDate:
			a.ToBeDeployedDate = &now
		case AutoUserInUseDate:
			a.UserInUseDate = &now
		case AutoReportedToRepairDate:
			a.ReportedToRepairDate = &now
		}
	}
}

// checkRequiredFields verifies the merged asset satisfies the rule's required
// fields after side effects were applied.
func (s *Service) checkRequiredFields(a *Asset, rule StatusRule) error {
	fieldErrs := map[string]string{}
	for _, f := range rule.RequiredFields {
		switch f {
		case "deploymentSetupDate":
			if a.DeploymentSetupDate == nil {
				fieldErrs["deployment_setup_date"] = "required"
			}
		case "assignedToEmployeeId":
			if a.AssignedToEmployeeID == nil {
				fieldErrs["assigned_to_employee_id"] = "required"
			}
		case "underRepairDate":
			if a.UnderRepairDate == nil {
				fieldErrs["under_repair_date"] = "required"
			}
		case "repairedDate":
			if a.RepairedDate == nil {
				fieldErrs["repaired_date"] = "required"
			}
		case "retiredDate":
			if a.RetiredDate == nil {
				fieldErrs["retired_date"] = "required"
			}
		}
	}
	if len(fieldErrs) > 0 {
		return &ValidationError{Fields: fieldErrs}
	}
	return nil
}

// appendHistory inserts one immutable ledger row inside the caller's
// transaction, capturing the resulting state of the transition.
func (s *Service) appendHistory(ctx context.Context, tx pgx.Tx, a *Asset, actor, note string, at time.Time) error {
	const q = `
		insert into asset_history (id, asset_id, status, location, changed_by, employee_id, note, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := tx.Exec(ctx, q, uuid.New(), a.ID, a.Status, a.Location, actor,
		a.AssignedToEmployeeID, note, at); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

const selectAsset = `
	select
		a.id, a.asset_tag, a.name, a.manufacturer, a.category, a.status, a.location,
		a.assigned_to_employee_id, a.purchase_date, a.warranty_end_date,
		a.deployment_setup_date, a.to_be_deployed_date, a.first_in_use_date,
		a.user_in_use_date, a.reported_to_repair_date, a.under_repair_date,
		a.repaired_date, a.retired_date, a.version, a.created_at, a.updated_at,
		e.id, e.name, e.email, e.job_status, e.work_style, e.current_address, e.home_address
	from assets a
	left join employees e on a.assigned_to_employee_id = e.id`

// scanAsset scans one asset row with the employee join.
func scanAsset(row pgx.Row) (*Asset, error) {
	a := &Asset{}
	var empID *uuid.UUID
	var empName, empEmail, empJobStatus, empWorkStyle *string
	var empCurrentAddress, empHomeAddress *string

	err := row.Scan(
		&a.ID, &a.AssetTag, &a.Name, &a.Manufacturer, &a.Category, &a.Status, &a.Location,
		&a.AssignedToEmployeeID, &a.PurchaseDate, &a.WarrantyEndDate,
		&a.DeploymentSetupDate, &a.ToBeDeployedDate, &a.FirstInUseDate,
		&a.UserInUseDate, &a.ReportedToRepairDate, &a.UnderRepairDate,
		&a.RepairedDate, &a.RetiredDate, &a.Version, &a.CreatedAt, &a.UpdatedAt,
		&empID, &empName, &empEmail, &empJobStatus, &empWorkStyle,
		&empCurrentAddress, &empHomeAddress,
	)
	if err != nil {
		return nil, err
	}

	if empID != nil {
		emp := &AssetEmployee{ID: *empID, CurrentAddress: empCurrentAddress, HomeAddress: empHomeAddress}
		if empName != nil {
			emp.Name = *empName
		}
		if empEmail != nil {
			emp.Email = *empEmail
		}
		if empJobStatus != nil {
			emp.JobStatus = *empJobStatus
		}
		if empWorkStyle != nil {
			emp.WorkStyle = *empWorkStyle
		}
		a.AssignedTo = emp
	}
	return a, nil
}
