package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/evw88/nifayatech/internal/admin"
	"github.com/evw88/nifayatech/internal/store"
)

// Handler serves the driver-facing fleet API.
type Handler struct {
	store *store.Store
	log   zerolog.Logger
}

func NewHandler(s *store.Store, log zerolog.Logger) *Handler {
	return &Handler{store: s, log: log}
}

func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	grp := app.Group("/api/driver")
	for _, mw := range middleware {
		grp.Use(mw)
	}

	grp.Get("/dashboard", h.Dashboard)
	grp.Get("/available", h.AvailableDrivers)
	grp.Get("/swap-requests", h.ListSwapRequests)
	grp.Post("/swap-requests", h.CreateSwapRequest)
	grp.Post("/swap-requests/:id/respond", h.RespondSwapRequest)
	grp.Post("/shift/start", h.StartShift)
	grp.Post("/shift/complete", h.CompleteShift)
	grp.Post("/issues", h.ReportIssue)
}

// Dashboard handles GET /api/driver/dashboard. One aggregate payload with
// everything the driver app renders on its home screen.
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	ctx := c.Context()
	d := h.store.Dialect

	driverID := c.QueryInt("driver_id")
	if driverID <= 0 {
		pb := d.NewParamBuilder()
		row, err := store.QueryRow(ctx, h.store.DB,
			"SELECT id FROM drivers ORDER BY id LIMIT "+pb.Add(1), pb.Params()...)
		if err != nil {
			return admin.NewAppError("NOT_FOUND", 404, "No driver found")
		}
		driverID = int(intVal(row["id"]))
	}

	pb := d.NewParamBuilder()
	driverSQL := fmt.Sprintf(`SELECT d.id AS driver_id, d.code AS driver_code, d.status AS driver_status,
u.id AS user_id, u.name, u.username, u.email, u.phone, u.role, u.status AS user_status
FROM drivers d
JOIN users u ON u.id = d.user_id
WHERE d.id = %s`, pb.Add(driverID))
	driver, err := store.QueryRow(ctx, h.store.DB, driverSQL, pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return admin.NewAppError("NOT_FOUND", 404, "Driver not found")
		}
		return err
	}

	schedule, err := h.fetchSchedule(ctx, driverID, true)
	if errors.Is(err, store.ErrNotFound) {
		schedule, err = h.fetchSchedule(ctx, driverID, false)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return admin.NewAppError("NOT_FOUND", 404, "No schedule found for this driver")
		}
		return err
	}

	zones, err := store.QueryRows(ctx, h.store.DB,
		"SELECT id, name, code, city, district FROM zones ORDER BY name")
	if err != nil {
		return err
	}

	containerTypes, err := store.QueryRows(ctx, h.store.DB,
		"SELECT id, name, color_code, description FROM container_types ORDER BY name")
	if err != nil {
		return err
	}

	pb = d.NewParamBuilder()
	containersSQL := fmt.Sprintf(`SELECT c.id, c.code, c.type_id, ct.name AS type_name, ct.color_code,
c.capacity_liters, c.current_fill_percentage, c.latitude, c.longitude, c.address,
c.zone_id, c.status, c.alert_threshold
FROM route_stops rs
JOIN containers c ON c.id = rs.container_id
JOIN container_types ct ON ct.id = c.type_id
WHERE rs.route_id = %s
ORDER BY rs.position`, pb.Add(schedule["route_id"]))
	containers, err := store.QueryRows(ctx, h.store.DB, containersSQL, pb.Params()...)
	if err != nil {
		return err
	}

	pb = d.NewParamBuilder()
	alerts, err := store.QueryRows(ctx, h.store.DB,
		fmt.Sprintf("SELECT id, alert_type, severity, title, message, is_resolved, created_at FROM alerts ORDER BY created_at DESC LIMIT %s", pb.Add(10)),
		pb.Params()...)
	if err != nil {
		return err
	}

	shifts, err := store.QueryRows(ctx, h.store.DB,
		"SELECT id, name, start_time, end_time, description FROM work_shifts ORDER BY id")
	if err != nil {
		return err
	}

	pb = d.NewParamBuilder()
	timeline, err := store.QueryRows(ctx, h.store.DB,
		fmt.Sprintf("SELECT id, shift_id, work_date, status, notes FROM work_timeline WHERE driver_id = %s ORDER BY work_date DESC LIMIT %s",
			pb.Add(driverID), pb.Add(5)),
		pb.Params()...)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"driver":          driver,
		"schedule":        schedule,
		"zones":           emptyIfNil(zones),
		"container_types": emptyIfNil(containerTypes),
		"containers":      emptyIfNil(containers),
		"alerts":          emptyIfNil(alerts),
		"shifts":          emptyIfNil(shifts),
		"timeline":        emptyIfNil(timeline),
	}})
}

// AvailableDrivers handles GET /api/driver/available — other drivers the
// requester could swap with, preferring same-date schedules.
func (h *Handler) AvailableDrivers(c *fiber.Ctx) error {
	ctx := c.Context()
	driverID := c.QueryInt("driver_id")
	scheduleID := c.QueryInt("schedule_id")
	if driverID <= 0 {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "driver_id is required")
	}

	var schedule map[string]any
	var err error
	if scheduleID > 0 {
		pb := h.store.Dialect.NewParamBuilder()
		schedule, err = store.QueryRow(ctx, h.store.DB,
			fmt.Sprintf("SELECT * FROM collection_schedules WHERE id = %s AND driver_id = %s",
				pb.Add(scheduleID), pb.Add(driverID)),
			pb.Params()...)
	} else {
		schedule, err = h.latestSchedule(ctx, driverID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(fiber.Map{"data": []any{}})
		}
		return err
	}

	rows, err := h.candidateDrivers(ctx, driverID, schedule["scheduled_date"])
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		rows, err = h.candidateDrivers(ctx, driverID, nil)
		if err != nil {
			return err
		}
	}

	// One entry per driver, keeping the most recent schedule.
	seen := make(map[int64]bool)
	var out []map[string]any
	for _, row := range rows {
		id := intVal(row["driver_id"])
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, row)
	}
	if out == nil {
		out = []map[string]any{}
	}

	return c.JSON(fiber.Map{"data": out})
}

// ListSwapRequests handles GET /api/driver/swap-requests.
func (h *Handler) ListSwapRequests(c *fiber.Ctx) error {
	driverID := c.QueryInt("driver_id")
	if driverID <= 0 {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "driver_id is required")
	}

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(`SELECT sr.id, sr.status, sr.message, sr.created_at, sr.responded_at,
rd.id AS requester_id, rd.code AS requester_code, ru.name AS requester_name,
td.id AS target_id, td.code AS target_code, tu.name AS target_name,
cs.id AS schedule_id, cs.scheduled_date, cs.scheduled_start_time, sr.target_schedule_id
FROM swap_requests sr
JOIN drivers rd ON rd.id = sr.requester_id
JOIN users ru ON ru.id = rd.user_id
JOIN drivers td ON td.id = sr.target_id
JOIN users tu ON tu.id = td.user_id
JOIN collection_schedules cs ON cs.id = sr.schedule_id
WHERE sr.requester_id = %s OR sr.target_id = %s
ORDER BY sr.created_at DESC`, pb.Add(driverID), pb.Add(driverID))

	rows, err := store.QueryRows(c.Context(), h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// CreateSwapRequest handles POST /api/driver/swap-requests.
func (h *Handler) CreateSwapRequest(c *fiber.Ctx) error {
	var body struct {
		RequesterID      int    `json:"requester_id"`
		TargetID         int    `json:"target_id"`
		ScheduleID       int    `json:"schedule_id"`
		TargetScheduleID int    `json:"target_schedule_id"`
		Message          string `json:"message"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RequesterID <= 0 || body.TargetID <= 0 || body.ScheduleID <= 0 {
		return admin.ValidationError([]admin.ErrorDetail{
			{Rule: "required", Message: "requester_id, target_id and schedule_id are required"},
		})
	}
	if body.RequesterID == body.TargetID {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Cannot swap with the same driver")
	}

	ctx := c.Context()
	d := h.store.Dialect

	pb := d.NewParamBuilder()
	schedule, err := store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf("SELECT * FROM collection_schedules WHERE id = %s AND driver_id = %s",
			pb.Add(body.ScheduleID), pb.Add(body.RequesterID)),
		pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return admin.NewAppError("NOT_FOUND", 404, "Schedule not found for requester")
		}
		return err
	}

	targetScheduleID := int64(body.TargetScheduleID)
	if targetScheduleID > 0 {
		pb = d.NewParamBuilder()
		_, err = store.QueryRow(ctx, h.store.DB,
			fmt.Sprintf("SELECT id FROM collection_schedules WHERE id = %s AND driver_id = %s",
				pb.Add(targetScheduleID), pb.Add(body.TargetID)),
			pb.Params()...)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return admin.NewAppError("NOT_FOUND", 404, "Target schedule not found")
			}
			return err
		}
	} else {
		pb = d.NewParamBuilder()
		target, err := store.QueryRow(ctx, h.store.DB,
			fmt.Sprintf("SELECT id FROM collection_schedules WHERE driver_id = %s AND scheduled_date = %s ORDER BY scheduled_start_time DESC LIMIT %s",
				pb.Add(body.TargetID), pb.Add(schedule["scheduled_date"]), pb.Add(1)),
			pb.Params()...)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return admin.NewAppError("NOT_FOUND", 404, "Target driver has no schedule on this date")
			}
			return err
		}
		targetScheduleID = intVal(target["id"])
	}

	pb = d.NewParamBuilder()
	pending, err := store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf("SELECT COUNT(*) AS count FROM swap_requests WHERE requester_id = %s AND target_id = %s AND schedule_id = %s AND status = %s",
			pb.Add(body.RequesterID), pb.Add(body.TargetID), pb.Add(body.ScheduleID), pb.Add("pending")),
		pb.Params()...)
	if err != nil {
		return err
	}
	if intVal(pending["count"]) > 0 {
		return admin.ConflictError("A pending swap request already exists")
	}

	pb = d.NewParamBuilder()
	insertSQL := fmt.Sprintf(`INSERT INTO swap_requests (requester_id, target_id, schedule_id, target_schedule_id, message, status, created_at)
VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(body.RequesterID), pb.Add(body.TargetID), pb.Add(body.ScheduleID),
		pb.Add(targetScheduleID), pb.Add(nilIfEmpty(body.Message)), pb.Add("pending"), d.NowExpr())
	requestID, err := store.InsertID(ctx, h.store.DB, d, insertSQL, "id", pb.Params()...)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"request_id": requestID,
		"status":     "pending",
	}})
}

// RespondSwapRequest handles POST /api/driver/swap-requests/:id/respond.
// Accepting exchanges the two schedules' drivers and marks the request in a
// single transaction.
func (h *Handler) RespondSwapRequest(c *fiber.Ctx) error {
	var body struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Action != "accept" && body.Action != "decline" && body.Action != "cancel" {
		return admin.ValidationError([]admin.ErrorDetail{
			{Field: "action", Rule: "in", Message: "action must be accept, decline or cancel"},
		})
	}

	ctx := c.Context()
	d := h.store.Dialect
	requestID, err := c.ParamsInt("id")
	if err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request id")
	}

	pb := d.NewParamBuilder()
	swap, err := store.QueryRow(ctx, h.store.DB,
		"SELECT * FROM swap_requests WHERE id = "+pb.Add(requestID), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return admin.NewAppError("NOT_FOUND", 404, "Swap request not found")
		}
		return err
	}
	if status, _ := swap["status"].(string); status != "pending" {
		return admin.ConflictError("Swap request already processed")
	}

	if body.Action == "accept" {
		if err := h.acceptSwap(ctx, swap); err != nil {
			return err
		}
	} else {
		status := "declined"
		if body.Action == "cancel" {
			status = "cancelled"
		}
		pb = d.NewParamBuilder()
		updateSQL := fmt.Sprintf("UPDATE swap_requests SET status = %s, responded_at = %s WHERE id = %s",
			pb.Add(status), d.NowExpr(), pb.Add(swap["id"]))
		if _, err := store.Exec(ctx, h.store.DB, updateSQL, pb.Params()...); err != nil {
			return err
		}
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"status": body.Action}})
}

// StartShift handles POST /api/driver/shift/start. The status transition is a
// guarded single-statement update; zero rows means the schedule is missing or
// not in the expected state.
func (h *Handler) StartShift(c *fiber.Ctx) error {
	return h.transitionShift(c, "scheduled", "in_progress", "actual_start_time",
		"Schedule not found or already started")
}

// CompleteShift handles POST /api/driver/shift/complete.
func (h *Handler) CompleteShift(c *fiber.Ctx) error {
	return h.transitionShift(c, "in_progress", "completed", "actual_end_time",
		"Schedule not in progress")
}

func (h *Handler) transitionShift(c *fiber.Ctx, from, to, stampColumn, notFoundMsg string) error {
	var body struct {
		DriverID   int `json:"driver_id"`
		ScheduleID int `json:"schedule_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.DriverID <= 0 || body.ScheduleID <= 0 {
		return admin.ValidationError([]admin.ErrorDetail{
			{Rule: "required", Message: "driver_id and schedule_id are required"},
		})
	}

	d := h.store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE collection_schedules SET status = %s, %s = %s WHERE id = %s AND driver_id = %s AND status = %s",
		pb.Add(to), stampColumn, d.NowExpr(), pb.Add(body.ScheduleID), pb.Add(body.DriverID), pb.Add(from))
	affected, err := store.Exec(c.Context(), h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return admin.NewAppError("NOT_FOUND", 404, notFoundMsg)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"status": to}})
}

// ReportIssue handles POST /api/driver/issues — a driver-raised alert.
func (h *Handler) ReportIssue(c *fiber.Ctx) error {
	var body struct {
		Title       string `json:"title"`
		Message     string `json:"message"`
		Severity    string `json:"severity"`
		RouteID     *int   `json:"route_id"`
		VehicleID   *int   `json:"vehicle_id"`
		ContainerID *int   `json:"container_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}

	var errs []admin.ErrorDetail
	if body.Title == "" {
		errs = append(errs, admin.ErrorDetail{Field: "title", Rule: "required", Message: "title is required"})
	}
	if len(body.Title) > 200 {
		errs = append(errs, admin.ErrorDetail{Field: "title", Rule: "max", Message: "title must be at most 200 characters"})
	}
	if body.Message == "" {
		errs = append(errs, admin.ErrorDetail{Field: "message", Rule: "required", Message: "message is required"})
	}
	switch body.Severity {
	case "", "low", "medium", "high", "critical":
	default:
		errs = append(errs, admin.ErrorDetail{Field: "severity", Rule: "in", Message: "severity must be low, medium, high or critical"})
	}
	if len(errs) > 0 {
		return admin.ValidationError(errs)
	}

	severity := body.Severity
	if severity == "" {
		severity = "medium"
	}

	d := h.store.Dialect
	pb := d.NewParamBuilder()
	insertSQL := fmt.Sprintf(`INSERT INTO alerts (alert_type, severity, container_id, vehicle_id, route_id, title, message, is_resolved, created_at)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add("system"), pb.Add(severity), pb.Add(nilIfZero(body.ContainerID)),
		pb.Add(nilIfZero(body.VehicleID)), pb.Add(nilIfZero(body.RouteID)),
		pb.Add(body.Title), pb.Add(body.Message), pb.Add(false), d.NowExpr())
	alertID, err := store.InsertID(c.Context(), h.store.DB, d, insertSQL, "id", pb.Params()...)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"alert_id": alertID}})
}

// acceptSwap exchanges the drivers on the two schedules and marks the request
// accepted, atomically.
func (h *Handler) acceptSwap(ctx context.Context, swap map[string]any) error {
	d := h.store.Dialect
	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, scheduleID := range []any{swap["schedule_id"], swap["target_schedule_id"]} {
		pb := d.NewParamBuilder()
		if _, err := store.QueryRow(ctx, tx,
			"SELECT id FROM collection_schedules WHERE id = "+pb.Add(scheduleID),
			pb.Params()...); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return admin.ConflictError("Schedule no longer exists")
			}
			return err
		}
	}

	pb := d.NewParamBuilder()
	if _, err := store.Exec(ctx, tx,
		fmt.Sprintf("UPDATE collection_schedules SET driver_id = %s WHERE id = %s",
			pb.Add(swap["target_id"]), pb.Add(swap["schedule_id"])),
		pb.Params()...); err != nil {
		return err
	}

	pb = d.NewParamBuilder()
	if _, err := store.Exec(ctx, tx,
		fmt.Sprintf("UPDATE collection_schedules SET driver_id = %s WHERE id = %s",
			pb.Add(swap["requester_id"]), pb.Add(swap["target_schedule_id"])),
		pb.Params()...); err != nil {
		return err
	}

	pb = d.NewParamBuilder()
	if _, err := store.Exec(ctx, tx,
		fmt.Sprintf("UPDATE swap_requests SET status = %s, responded_at = %s WHERE id = %s",
			pb.Add("accepted"), d.NowExpr(), pb.Add(swap["id"])),
		pb.Params()...); err != nil {
		return err
	}

	return tx.Commit()
}

// fetchSchedule returns the driver's schedule with route, vehicle and partner
// joined: today's when todayOnly, else the most recent overall.
func (h *Handler) fetchSchedule(ctx context.Context, driverID int, todayOnly bool) (map[string]any, error) {
	d := h.store.Dialect
	pb := d.NewParamBuilder()

	sqlStr := fmt.Sprintf(`SELECT cs.id AS schedule_id, cs.scheduled_date, cs.scheduled_start_time, cs.status,
r.id AS route_id, r.name AS route_name, r.code AS route_code, r.zone_id,
r.estimated_duration_minutes, r.total_distance_km, r.priority_level, r.status AS route_status,
v.id AS vehicle_id, v.code AS vehicle_code, v.license_plate, v.vehicle_type,
v.capacity_kg, v.operational_status, v.current_latitude, v.current_longitude,
p.id AS partner_id, p.code AS partner_code, pu.name AS partner_name, pu.phone AS partner_phone
FROM collection_schedules cs
JOIN routes r ON r.id = cs.route_id
LEFT JOIN vehicles v ON v.id = cs.vehicle_id
LEFT JOIN drivers p ON p.id = cs.partner_id
LEFT JOIN users pu ON pu.id = p.user_id
WHERE cs.driver_id = %s`, pb.Add(driverID))
	if todayOnly {
		sqlStr += " AND cs.scheduled_date = " + pb.Add(time.Now().Format("2006-01-02"))
	}
	sqlStr += fmt.Sprintf(" ORDER BY cs.scheduled_date DESC, cs.scheduled_start_time DESC LIMIT %s", pb.Add(1))

	return store.QueryRow(ctx, h.store.DB, sqlStr, pb.Params()...)
}

func (h *Handler) latestSchedule(ctx context.Context, driverID int) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf("SELECT * FROM collection_schedules WHERE driver_id = %s ORDER BY scheduled_date DESC, scheduled_start_time DESC LIMIT %s",
			pb.Add(driverID), pb.Add(1)),
		pb.Params()...)
}

// candidateDrivers lists other drivers with schedules, optionally restricted
// to one date.
func (h *Handler) candidateDrivers(ctx context.Context, excludeID int, date any) ([]map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()

	sqlStr := fmt.Sprintf(`SELECT d.id AS driver_id, d.code, u.name, cs.id AS schedule_id, cs.scheduled_date, cs.scheduled_start_time
FROM collection_schedules cs
JOIN drivers d ON d.id = cs.driver_id
JOIN users u ON u.id = d.user_id
WHERE d.id != %s`, pb.Add(excludeID))
	if date != nil {
		sqlStr += " AND cs.scheduled_date = " + pb.Add(date)
	}
	sqlStr += " ORDER BY cs.scheduled_date DESC, cs.scheduled_start_time DESC"

	return store.QueryRows(ctx, h.store.DB, sqlStr, pb.Params()...)
}

func emptyIfNil(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfZero(n *int) any {
	if n == nil || *n == 0 {
		return nil
	}
	return *n
}

func intVal(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
