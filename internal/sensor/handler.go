package sensor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/evw88/nifayatech/internal/admin"
	"github.com/evw88/nifayatech/internal/store"
)

// Handler ingests container sensor telemetry.
type Handler struct {
	store *store.Store
	log   zerolog.Logger
}

func NewHandler(s *store.Store, log zerolog.Logger) *Handler {
	return &Handler{store: s, log: log}
}

// RegisterRoutes mounts the ingestion API. The update endpoint accepts GET as
// well, for low-end sensor firmware that can only issue parameterized GETs.
func RegisterRoutes(app *fiber.App, h *Handler) {
	v1 := app.Group("/api/v1")
	v1.Get("/sensor/update", h.UpdateSensor)
	v1.Post("/sensor/update", h.UpdateSensor)
	v1.Post("/sensor/:sensor_id/reading", h.AddReading)
	v1.Post("/sensor/bulk-update", h.BulkUpdate)
	v1.Get("/container/:code/status", h.ContainerStatus)
}

type readingInput struct {
	Code           string   `json:"code"`
	FillPercentage *float64 `json:"fill_percentage"`
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	BatteryLevel   *float64 `json:"battery_level"`
	SignalStrength *float64 `json:"signal_strength"`
	APIToken       string   `json:"api_token"`
}

// UpdateSensor handles GET|POST /api/v1/sensor/update.
func (h *Handler) UpdateSensor(c *fiber.Ctx) error {
	input, err := parseReading(c)
	if err != nil {
		return err
	}
	if input.Code == "" {
		return admin.ValidationError([]admin.ErrorDetail{
			{Field: "code", Rule: "required", Message: "code is required"},
		})
	}
	if errs := validateReading(input); len(errs) > 0 {
		return admin.ValidationError(errs)
	}

	result, err := h.ingest(c.Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// AddReading handles POST /api/v1/sensor/:sensor_id/reading — the same
// ingestion flow, addressed by sensor identifier instead of container code.
func (h *Handler) AddReading(c *fiber.Ctx) error {
	input, err := parseReading(c)
	if err != nil {
		return err
	}
	if errs := validateReading(input); len(errs) > 0 {
		return admin.ValidationError(errs)
	}

	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	container, err := store.QueryRow(ctx, h.store.DB,
		"SELECT * FROM containers WHERE sensor_id = "+pb.Add(c.Params("sensor_id")),
		pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return admin.NewAppError("NOT_FOUND", 404, "Sensor not found")
		}
		return err
	}

	input.Code, _ = container["code"].(string)
	result, err := h.ingestInto(ctx, input, container)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// BulkUpdate handles POST /api/v1/sensor/bulk-update. Items are processed
// independently; one bad sensor does not fail the batch.
func (h *Handler) BulkUpdate(c *fiber.Ctx) error {
	var body struct {
		Sensors []readingInput `json:"sensors"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if len(body.Sensors) == 0 {
		return admin.ValidationError([]admin.ErrorDetail{
			{Field: "sensors", Rule: "required", Message: "sensors must be a non-empty array"},
		})
	}

	ctx := c.Context()
	var results []fiber.Map
	successful := 0
	for i := range body.Sensors {
		item := &body.Sensors[i]
		if errs := validateReading(item); len(errs) > 0 || item.Code == "" {
			results = append(results, fiber.Map{
				"code": item.Code, "status": "failed", "message": "validation failed",
			})
			continue
		}
		if _, err := h.ingest(ctx, item); err != nil {
			h.log.Warn().Err(err).Str("code", item.Code).Msg("bulk sensor update item failed")
			results = append(results, fiber.Map{
				"code": item.Code, "status": "failed", "message": err.Error(),
			})
			continue
		}
		successful++
		results = append(results, fiber.Map{"code": item.Code, "status": "success"})
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"summary": fiber.Map{
			"total":      len(body.Sensors),
			"successful": successful,
			"failed":     len(body.Sensors) - successful,
		},
		"results": results,
	}})
}

// ContainerStatus handles GET /api/v1/container/:code/status.
func (h *Handler) ContainerStatus(c *fiber.Ctx) error {
	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(`SELECT c.*, t.name AS type_name, t.color_code, z.name AS zone_name
FROM containers c
JOIN container_types t ON t.id = c.type_id
LEFT JOIN zones z ON z.id = c.zone_id
WHERE c.code = %s`, pb.Add(c.Params("code")))

	container, err := store.QueryRow(ctx, h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return admin.NewAppError("NOT_FOUND", 404, "Container not found")
		}
		return err
	}

	pb = h.store.Dialect.NewParamBuilder()
	latest, err := store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf("SELECT * FROM sensor_readings WHERE container_id = %s ORDER BY reading_timestamp DESC LIMIT %s",
			pb.Add(container["id"]), pb.Add(1)),
		pb.Params()...)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	fill := floatVal(container["current_fill_percentage"])
	priority := "normal"
	switch {
	case fill >= thresholdOf(container):
		priority = "urgent"
	case fill >= 60:
		priority = "soon"
	}

	var latestReading fiber.Map
	if latest != nil {
		latestReading = fiber.Map{
			"temperature":     latest["temperature"],
			"humidity":        latest["humidity"],
			"battery_level":   latest["battery_level"],
			"signal_strength": latest["signal_strength"],
			"timestamp":       latest["reading_timestamp"],
		}
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"code":                    container["code"],
		"type":                    container["type_name"],
		"capacity_liters":         container["capacity_liters"],
		"current_fill_percentage": fill,
		"status":                  container["status"],
		"priority":                priority,
		"location": fiber.Map{
			"latitude":  container["latitude"],
			"longitude": container["longitude"],
			"address":   container["address"],
			"zone":      container["zone_name"],
		},
		"last_update":    container["last_sensor_update"],
		"latest_reading": latestReading,
	}})
}

// ingest resolves the container by code and runs the ingestion transaction.
func (h *Handler) ingest(ctx context.Context, input *readingInput) (fiber.Map, error) {
	pb := h.store.Dialect.NewParamBuilder()
	container, err := store.QueryRow(ctx, h.store.DB,
		"SELECT * FROM containers WHERE code = "+pb.Add(input.Code), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, admin.NewAppError("NOT_FOUND", 404, "Container not found")
		}
		return nil, err
	}
	return h.ingestInto(ctx, input, container)
}

// ingestInto inserts the reading, refreshes the container's fill state, and
// raises threshold/battery alerts — all in one transaction.
func (h *Handler) ingestInto(ctx context.Context, input *readingInput, container map[string]any) (fiber.Map, error) {
	if token, ok := container["api_token"].(string); ok && token != "" && input.APIToken != "" {
		if input.APIToken != token {
			return nil, admin.UnauthorizedError("Invalid API token")
		}
	}

	d := h.store.Dialect
	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	containerID := container["id"]
	fill := *input.FillPercentage

	pb := d.NewParamBuilder()
	insertSQL := fmt.Sprintf(`INSERT INTO sensor_readings (container_id, fill_percentage, temperature, humidity, battery_level, signal_strength, reading_timestamp)
VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(containerID), pb.Add(fill), pb.Add(nullable(input.Temperature)),
		pb.Add(nullable(input.Humidity)), pb.Add(nullable(input.BatteryLevel)),
		pb.Add(nullable(input.SignalStrength)), d.NowExpr())
	readingID, err := store.InsertID(ctx, tx, d, insertSQL, "id", pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert reading: %w", err)
	}

	pb = d.NewParamBuilder()
	updateSQL := fmt.Sprintf("UPDATE containers SET current_fill_percentage = %s, last_sensor_update = %s WHERE id = %s",
		pb.Add(fill), d.NowExpr(), pb.Add(containerID))
	if _, err := store.Exec(ctx, tx, updateSQL, pb.Params()...); err != nil {
		return nil, fmt.Errorf("update container: %w", err)
	}

	alertCreated := false
	status, _ := container["status"].(string)
	if fill >= thresholdOf(container) && status == "active" {
		created, err := h.raiseAlert(ctx, tx, containerID, "container_full", "high",
			fmt.Sprintf("Container %s requires collection", input.Code),
			fmt.Sprintf("Container at %v has reached %s%% capacity",
				container["address"], strconv.FormatFloat(fill, 'f', -1, 64)))
		if err != nil {
			return nil, err
		}
		alertCreated = created
	}

	if input.BatteryLevel != nil && *input.BatteryLevel < 20 {
		if _, err := h.raiseAlert(ctx, tx, containerID, "low_battery", "medium",
			fmt.Sprintf("Low battery on container %s", input.Code),
			fmt.Sprintf("Sensor battery level is at %s%%",
				strconv.FormatFloat(*input.BatteryLevel, 'f', -1, 64))); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return fiber.Map{
		"reading_id":      readingID,
		"code":            input.Code,
		"fill_percentage": fill,
		"alert_created":   alertCreated,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// raiseAlert inserts an alert unless an unresolved one of the same type is
// already open for the container.
func (h *Handler) raiseAlert(ctx context.Context, tx *sql.Tx, containerID any, alertType, severity, title, message string) (bool, error) {
	d := h.store.Dialect

	pb := d.NewParamBuilder()
	existing, err := store.QueryRow(ctx, tx,
		fmt.Sprintf("SELECT COUNT(*) AS count FROM alerts WHERE container_id = %s AND alert_type = %s AND is_resolved = %s",
			pb.Add(containerID), pb.Add(alertType), pb.Add(false)),
		pb.Params()...)
	if err != nil {
		return false, fmt.Errorf("check existing alert: %w", err)
	}
	if floatVal(existing["count"]) > 0 {
		return false, nil
	}

	pb = d.NewParamBuilder()
	insertSQL := fmt.Sprintf(`INSERT INTO alerts (alert_type, severity, container_id, title, message, is_resolved, created_at)
VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(alertType), pb.Add(severity), pb.Add(containerID),
		pb.Add(title), pb.Add(message), pb.Add(false), d.NowExpr())
	if _, err := store.Exec(ctx, tx, insertSQL, pb.Params()...); err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return true, nil
}

// parseReading reads telemetry from the JSON body, or from query parameters
// on GET requests.
func parseReading(c *fiber.Ctx) (*readingInput, error) {
	if c.Method() == fiber.MethodGet {
		input := &readingInput{
			Code:     c.Query("code"),
			APIToken: c.Query("api_token"),
		}
		input.FillPercentage = queryFloat(c, "fill_percentage")
		input.Temperature = queryFloat(c, "temperature")
		input.Humidity = queryFloat(c, "humidity")
		input.BatteryLevel = queryFloat(c, "battery_level")
		input.SignalStrength = queryFloat(c, "signal_strength")
		return input, nil
	}

	var input readingInput
	if err := c.BodyParser(&input); err != nil {
		return nil, admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	return &input, nil
}

func validateReading(r *readingInput) []admin.ErrorDetail {
	var errs []admin.ErrorDetail

	if r.FillPercentage == nil {
		errs = append(errs, admin.ErrorDetail{Field: "fill_percentage", Rule: "required", Message: "fill_percentage is required"})
	} else if *r.FillPercentage < 0 || *r.FillPercentage > 100 {
		errs = append(errs, admin.ErrorDetail{Field: "fill_percentage", Rule: "between", Message: "fill_percentage must be between 0 and 100"})
	}
	if r.Temperature != nil && (*r.Temperature < -50 || *r.Temperature > 100) {
		errs = append(errs, admin.ErrorDetail{Field: "temperature", Rule: "between", Message: "temperature must be between -50 and 100"})
	}
	if r.Humidity != nil && (*r.Humidity < 0 || *r.Humidity > 100) {
		errs = append(errs, admin.ErrorDetail{Field: "humidity", Rule: "between", Message: "humidity must be between 0 and 100"})
	}
	if r.BatteryLevel != nil && (*r.BatteryLevel < 0 || *r.BatteryLevel > 100) {
		errs = append(errs, admin.ErrorDetail{Field: "battery_level", Rule: "between", Message: "battery_level must be between 0 and 100"})
	}
	if r.SignalStrength != nil {
		s := *r.SignalStrength
		if s != float64(int64(s)) {
			errs = append(errs, admin.ErrorDetail{Field: "signal_strength", Rule: "integer", Message: "signal_strength must be an integer"})
		} else if s < -120 || s > 0 {
			errs = append(errs, admin.ErrorDetail{Field: "signal_strength", Rule: "between", Message: "signal_strength must be between -120 and 0"})
		}
	}
	return errs
}

func queryFloat(c *fiber.Ctx, name string) *float64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// thresholdOf reads the container's alert threshold, defaulting to 80 when
// the column is null.
func thresholdOf(container map[string]any) float64 {
	if v := container["alert_threshold"]; v != nil {
		return floatVal(v)
	}
	return 80
}

func floatVal(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case []byte:
		f, _ := strconv.ParseFloat(string(n), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}
