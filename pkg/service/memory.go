package service

import (
	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/recall/pkg/category"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/stores/s3"
	"github.com/theapemachine/recall/pkg/unified"
)

/*
MemoryServer exposes the memory store over HTTP. It is safe for
concurrent use because the unified store and the registry are.
*/
type MemoryServer struct {
	app       *fiber.App
	store     *unified.Store
	snapshots *s3.Store
	addr      string
}

type MemoryServerOption func(*MemoryServer)

// WithSnapshots enables the snapshot endpoints against the given
// object store.
func WithSnapshots(snapshots *s3.Store) MemoryServerOption {
	return func(srv *MemoryServer) {
		srv.snapshots = snapshots
	}
}

// WithAddr overrides the default listen address.
func WithAddr(addr string) MemoryServerOption {
	return func(srv *MemoryServer) {
		srv.addr = addr
	}
}

/*
NewMemoryServer constructs a server over the supplied store.
*/
func NewMemoryServer(store *unified.Store, opts ...MemoryServerOption) *MemoryServer {
	srv := &MemoryServer{
		app: fiber.New(fiber.Config{
			AppName:      "recall",
			ServerHeader: "Recall-Memory-Server",
		}),
		store: store,
		addr:  ":3210",
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.routes()

	return srv
}

func (srv *MemoryServer) Start() error {
	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *MemoryServer) routes() {
	srv.app.Use(logger.New(), healthcheck.NewHealthChecker())

	srv.app.Get("/", srv.handleRoot)
	srv.app.Post("/search", srv.handleSearch)
	srv.app.Post("/memories", srv.handleStore)
	srv.app.Get("/memories/:id", srv.handleGet)
	srv.app.Put("/memories/:id", srv.handleUpdate)
	srv.app.Delete("/memories/:id", srv.handleDelete)
	srv.app.Post("/memories/:id/restore", srv.handleRestore)
	srv.app.Post("/memories/:id/refresh", srv.handleRefresh)
	srv.app.Get("/graph", srv.handleGraph)
	srv.app.Get("/stale", srv.handleStale)

	srv.app.Get("/categories", srv.handleListCategories)
	srv.app.Post("/categories", srv.handleCreateCategory)
	srv.app.Put("/categories/:name", srv.handleUpdateCategory)
	srv.app.Post("/categories/:name/rename", srv.handleRenameCategory)
	srv.app.Delete("/categories/:name", srv.handleDeleteCategory)

	if srv.snapshots != nil {
		srv.app.Post("/snapshots", srv.handleTakeSnapshot)
		srv.app.Get("/snapshots", srv.handleListSnapshots)
		srv.app.Post("/snapshots/:key/restore", srv.handleRestoreSnapshot)
	}
}

func (srv *MemoryServer) handleRoot(ctx fiber.Ctx) error {
	return ctx.SendString("OK")
}

type searchRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit,omitempty"`
	Category       string   `json:"category,omitempty"`
	Project        string   `json:"project,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	MinImportance  int      `json:"min_importance,omitempty"`
	CurrentProject string   `json:"current_project,omitempty"`
}

func (srv *MemoryServer) handleSearch(ctx fiber.Ctx) error {
	var req searchRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	results, err := srv.store.Search(ctx.Context(), req.Query, memory.Filters{
		Category:      req.Category,
		Project:       req.Project,
		Tags:          req.Tags,
		MinImportance: req.MinImportance,
	}, req.Limit, req.CurrentProject)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": results,
	})
}

func (srv *MemoryServer) handleStore(ctx fiber.Ctx) error {
	var input unified.StoreInput

	if err := ctx.Bind().Body(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	m, err := srv.store.StoreMemory(ctx.Context(), input)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(m)
}

func (srv *MemoryServer) handleGet(ctx fiber.Ctx) error {
	m, err := srv.store.GetMemory(ctx.Context(), ctx.Params("id"))

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(m)
}

func (srv *MemoryServer) handleUpdate(ctx fiber.Ctx) error {
	var input unified.UpdateInput

	if err := ctx.Bind().Body(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	m, err := srv.store.UpdateMemory(ctx.Context(), ctx.Params("id"), input)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(m)
}

// handleDelete trashes by default; ?purge=true removes the point
// permanently.
func (srv *MemoryServer) handleDelete(ctx fiber.Ctx) error {
	id := ctx.Params("id")

	if ctx.Query("purge") == "true" {
		if err := srv.store.DeleteMemory(ctx.Context(), id); err != nil {
			return srv.fail(ctx, err)
		}

		return ctx.SendStatus(fiber.StatusNoContent)
	}

	if err := srv.store.TrashMemory(ctx.Context(), id); err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (srv *MemoryServer) handleRestore(ctx fiber.Ctx) error {
	if err := srv.store.RestoreMemory(ctx.Context(), ctx.Params("id")); err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (srv *MemoryServer) handleRefresh(ctx fiber.Ctx) error {
	m, err := srv.store.RefreshChecksums(ctx.Context(), ctx.Params("id"))

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(m)
}

func (srv *MemoryServer) handleGraph(ctx fiber.Ctx) error {
	g, err := srv.store.BuildGraph(ctx.Context())

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(g)
}

func (srv *MemoryServer) handleStale(ctx fiber.Ctx) error {
	report, err := srv.store.CheckStale(ctx.Context())

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(report)
}

func (srv *MemoryServer) handleListCategories(ctx fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"categories": srv.store.Registry().List(),
	})
}

func (srv *MemoryServer) handleCreateCategory(ctx fiber.Ctx) error {
	var cat category.Category

	if err := ctx.Bind().Body(&cat); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := srv.store.Registry().Create(cat); err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(cat)
}

type categoryUpdateRequest struct {
	Description *string `json:"description,omitempty"`
	Parent      *string `json:"parent,omitempty"`
}

func (srv *MemoryServer) handleUpdateCategory(ctx fiber.Ctx) error {
	var req categoryUpdateRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	name := ctx.Params("name")

	err := srv.store.Registry().Update(name, func(cat *category.Category) {
		if req.Description != nil {
			cat.Description = *req.Description
		}

		if req.Parent != nil {
			cat.Parent = *req.Parent
		}
	})

	if err != nil {
		return srv.fail(ctx, err)
	}

	cat, err := srv.store.Registry().Get(name)

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(cat)
}

type renameRequest struct {
	NewName string `json:"new_name"`
}

// handleRenameCategory returns 200 even when the memory cascade
// partially failed: the rename itself has committed, and the result
// carries the warning.
func (srv *MemoryServer) handleRenameCategory(ctx fiber.Ctx) error {
	var req renameRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result, err := srv.store.Registry().Rename(ctx.Context(), ctx.Params("name"), req.NewName)

	if err != nil {
		return srv.fail(ctx, err)
	}

	body := fiber.Map{
		"memories_updated": result.MemoriesUpdated,
		"children_updated": result.ChildrenUpdated,
	}

	if result.Warning != nil {
		body["warning"] = result.Warning.Error()
	}

	return ctx.Status(fiber.StatusOK).JSON(body)
}

func (srv *MemoryServer) handleDeleteCategory(ctx fiber.Ctx) error {
	var opts category.DeleteOptions

	if err := ctx.Bind().Body(&opts); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := srv.store.Registry().Delete(ctx.Context(), ctx.Params("name"), opts); err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (srv *MemoryServer) handleTakeSnapshot(ctx fiber.Ctx) error {
	memories, categories, err := srv.store.Export(ctx.Context())

	if err != nil {
		return srv.fail(ctx, err)
	}

	key, err := srv.snapshots.Put(ctx.Context(), s3.Snapshot{
		Memories:   memories,
		Categories: categories,
	})

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key": key,
	})
}

func (srv *MemoryServer) handleListSnapshots(ctx fiber.Ctx) error {
	keys, err := srv.snapshots.List(ctx.Context())

	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"snapshots": keys,
	})
}

func (srv *MemoryServer) handleRestoreSnapshot(ctx fiber.Ctx) error {
	snapshot, err := srv.snapshots.Get(ctx.Context(), ctx.Params("key"))

	if err != nil {
		return srv.fail(ctx, err)
	}

	if err := srv.store.Import(ctx.Context(), snapshot.Memories, snapshot.Categories); err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"memories":   len(snapshot.Memories),
		"categories": len(snapshot.Categories),
	})
}

// fail maps domain errors onto status codes.
func (srv *MemoryServer) fail(ctx fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch {
	case errors.IsValidation(err):
		status = fiber.StatusBadRequest
	case errors.IsNotFound(err):
		status = fiber.StatusNotFound
	case errors.IsConflict(err), errors.IsCircular(err):
		status = fiber.StatusConflict
	case errors.IsTransient(err):
		status = fiber.StatusBadGateway
	}

	if status == fiber.StatusInternalServerError || status == fiber.StatusBadGateway {
		log.Error("request failed", "path", ctx.Path(), "error", err)
	}

	return ctx.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
