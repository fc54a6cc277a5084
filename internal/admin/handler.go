package admin

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/evw88/nifayatech/internal/metadata"
	"github.com/evw88/nifayatech/internal/store"
)

// Handler is the metadata-driven CRUD interpreter: a single controller that
// turns module definitions into list/create/edit/update/delete behavior.
// Handlers are stateless per request; the registry is read-only after load.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	hasher   SecretHasher
	log      zerolog.Logger
}

func NewHandler(s *store.Store, reg *metadata.Registry, hasher SecretHasher, log zerolog.Logger) *Handler {
	return &Handler{store: s, registry: reg, hasher: hasher, log: log}
}

// RegisterRoutes mounts the CRUD surface under the given prefix.
func RegisterRoutes(app *fiber.App, h *Handler, prefix string, middleware ...fiber.Handler) {
	grp := app.Group(prefix)
	for _, mw := range middleware {
		grp.Use(mw)
	}

	grp.Get("/", h.Index)
	grp.Get("/:module/create", h.CreateForm)
	grp.Get("/:module/:id/edit", h.EditForm)
	grp.Put("/:module/:id", h.Update)
	grp.Delete("/:module/:id", h.Delete)
	grp.Get("/:module", h.List)
	grp.Post("/:module", h.Create)
}

// Index handles GET {prefix}/ — the dashboard: navigation groups with
// per-module record counts. A failing count degrades to null rather than
// failing the page.
func (h *Handler) Index(c *fiber.Ctx) error {
	var groups []fiber.Map
	for _, g := range h.registry.Groups() {
		var mods []fiber.Map
		for _, m := range g.Modules {
			var count any
			if n, err := store.Count(c.Context(), h.store.DB, m.Table); err != nil {
				h.log.Warn().Err(err).Str("module", m.Slug).Msg("dashboard count failed")
				count = nil
			} else {
				count = n
			}
			mods = append(mods, fiber.Map{
				"slug":  m.Slug,
				"label": m.Label,
				"count": count,
			})
		}
		groups = append(groups, fiber.Map{"label": g.Label, "modules": mods})
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"title":  h.registry.Title(),
		"groups": groups,
	}})
}

// List handles GET {prefix}/:module — search, order, paginate, and attach
// identity tokens and relation label maps.
func (h *Handler) List(c *fiber.Ctx) error {
	m, err := h.resolveModule(c)
	if err != nil {
		return err
	}

	search := c.Query("q")
	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}

	sqlStr, params := BuildListSQL(h.store.Dialect, m, search, page)
	rows, err := store.QueryRows(c.Context(), h.store.DB, sqlStr, params...)
	if err != nil {
		return err
	}
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, booleanFields(m))
	}
	for _, row := range rows {
		row["__id"] = RowKey(row, m)
	}

	countSQL, countParams := BuildListCountSQL(h.store.Dialect, m, search)
	total, err := store.QueryRow(c.Context(), h.store.DB, countSQL, countParams...)
	if err != nil {
		return err
	}

	relations, err := RelationMaps(c.Context(), h.store, m)
	if err != nil {
		return err
	}

	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     page,
			"per_page": m.PerPage,
			"total":    total["count"],
			"search":   search,
		},
		"relations": relations,
	})
}

// CreateForm handles GET {prefix}/:module/create.
func (h *Handler) CreateForm(c *fiber.Ctx) error {
	m, err := h.resolveModule(c)
	if err != nil {
		return err
	}
	if !m.AllowCreate {
		return OperationDisabledError(m.Slug)
	}

	options, err := FieldOptions(c.Context(), h.store, m)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"module":  moduleSummary(m),
		"record":  nil,
		"options": options,
	}})
}

// Create handles POST {prefix}/:module.
func (h *Handler) Create(c *fiber.Ctx) error {
	m, err := h.resolveModule(c)
	if err != nil {
		return err
	}
	if !m.AllowCreate {
		return OperationDisabledError(m.Slug)
	}

	input, err := parseBody(c)
	if err != nil {
		return err
	}
	if errs := Validate(m, ModeCreate, input); len(errs) > 0 {
		return ValidationError(errs)
	}

	payload, err := BuildPayload(input, m, ModeCreate, h.hasher)
	if err != nil {
		return err
	}

	sqlStr, params := BuildInsertSQL(h.store.Dialect, m, payload)
	if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, params...); err != nil {
		return h.writeError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"status": m.Label + " created.",
	}})
}

// EditForm handles GET {prefix}/:module/:id/edit.
func (h *Handler) EditForm(c *fiber.Ctx) error {
	m, err := h.resolveModule(c)
	if err != nil {
		return err
	}
	if !m.AllowEdit {
		return OperationDisabledError(m.Slug)
	}

	token := c.Params("id")
	sqlStr, params := BuildSelectByKeySQL(h.store.Dialect, m, token)
	record, err := store.QueryRow(c.Context(), h.store.DB, sqlStr, params...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(m.Label, token)
		}
		return err
	}
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{record}, booleanFields(m))
	}

	options, err := FieldOptions(c.Context(), h.store, m)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"module":  moduleSummary(m),
		"record":  record,
		"id":      RowKey(record, m),
		"options": options,
	}})
}

// Update handles PUT {prefix}/:module/:id. The identity constraint and the
// mutation execute as one statement to avoid lost-update races.
func (h *Handler) Update(c *fiber.Ctx) error {
	m, err := h.resolveModule(c)
	if err != nil {
		return err
	}
	if !m.AllowEdit {
		return OperationDisabledError(m.Slug)
	}

	input, err := parseBody(c)
	if err != nil {
		return err
	}
	if errs := Validate(m, ModeUpdate, input); len(errs) > 0 {
		return ValidationError(errs)
	}

	payload, err := BuildPayload(input, m, ModeUpdate, h.hasher)
	if err != nil {
		return err
	}

	token := c.Params("id")
	sqlStr, params := BuildUpdateSQL(h.store.Dialect, m, payload, token)
	if sqlStr != "" {
		if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, params...); err != nil {
			return h.writeError(err)
		}
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"status": m.Label + " updated.",
	}})
}

// Delete handles DELETE {prefix}/:module/:id.
func (h *Handler) Delete(c *fiber.Ctx) error {
	m, err := h.resolveModule(c)
	if err != nil {
		return err
	}
	if !m.AllowDelete {
		return OperationDisabledError(m.Slug)
	}

	token := c.Params("id")
	sqlStr, params := BuildDeleteSQL(h.store.Dialect, m, token)
	if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, params...); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"status": m.Label + " deleted.",
	}})
}

func (h *Handler) resolveModule(c *fiber.Ctx) (*metadata.ModuleDefinition, error) {
	slug := c.Params("module")
	m := h.registry.Get(slug)
	if m == nil {
		return nil, UnknownModuleError(slug)
	}
	return m, nil
}

func (h *Handler) writeError(err error) error {
	mapped := h.store.Dialect.MapError(err)
	if errors.Is(mapped, store.ErrUniqueViolation) {
		return ConflictError("A record with this value already exists")
	}
	return err
}

func parseBody(c *fiber.Ctx) (map[string]any, error) {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return nil, NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	return body, nil
}

// moduleSummary is the form descriptor: module identity plus the form fields
// in configured order.
func moduleSummary(m *metadata.ModuleDefinition) fiber.Map {
	var fields []fiber.Map
	for _, name := range m.Form {
		f := m.GetField(name)
		if f == nil {
			continue
		}
		fields = append(fields, fiber.Map{
			"name":     f.Name,
			"label":    f.Label,
			"type":     f.Kind,
			"required": f.Required,
			"readonly": f.Readonly,
			"step":     f.Step,
		})
	}
	return fiber.Map{
		"slug":   m.Slug,
		"label":  m.Label,
		"fields": fields,
	}
}

func booleanFields(m *metadata.ModuleDefinition) []string {
	var fields []string
	for _, name := range m.FieldOrder {
		if f := m.GetField(name); f != nil && f.Kind == metadata.KindBoolean {
			fields = append(fields, name)
		}
	}
	return fields
}

// ErrorHandler is the central Fiber error handler: AppErrors render as their
// status and JSON envelope; everything else is a 500.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
			})
		}

		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
		})
	}
}
