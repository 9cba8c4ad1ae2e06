package web

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/graphspec"
	"github.com/soundforge/soundforge/pkg/materializer"
	"github.com/soundforge/soundforge/pkg/models"
	"github.com/soundforge/soundforge/pkg/services"
)

// catalogLister is implemented by catalogs that can enumerate their types.
type catalogLister interface {
	Types() []*models.NodeType
}

type APIHandlers struct {
	sessions  *services.Sessions
	graph     *services.Graph
	authoring *services.Authoring
	catalog   catalog.Catalog
	validator *validator.Validate
}

func NewAPIHandlers(
	sessions *services.Sessions,
	graph *services.Graph,
	authoring *services.Authoring,
	cat catalog.Catalog,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		sessions:  sessions,
		graph:     graph,
		authoring: authoring,
		catalog:   cat,
		validator: validator,
	}
}

// ListSessions returns a summary of every open session.
func (h *APIHandlers) ListSessions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"sessions": h.sessions.List()})
}

// OpenSession opens a fresh session or reopens a persisted asset.
func (h *APIHandlers) OpenSession(c fiber.Ctx) error {
	var req OpenSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.FromAsset != nil {
		ref := models.AssetRef{
			ID:   req.FromAsset.ID,
			Name: req.FromAsset.Name,
			Path: req.FromAsset.Path,
		}

		if _, err := h.sessions.OpenFromAsset(c.Context(), req.Name, ref); err != nil {
			return handleServiceError(c, err)
		}
	} else {
		if _, err := h.sessions.Open(c.Context(), req.Name, req.AssetType); err != nil {
			return handleServiceError(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(h.sessionResponse(c.Context(), req.Name, false))
}

// OpenSessionFromSpec validates a declarative graph spec and opens a
// session containing the described graph. Validation failures report every
// issue at once.
func (h *APIHandlers) OpenSessionFromSpec(c fiber.Ctx) error {
	spec, err := graphspec.Parse(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	session, err := spec.Build(c.Context(), h.catalog, nil)
	if err != nil {
		if verr, ok := err.(*graphspec.ValidationError); ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "graph spec invalid",
				"issues": verr.Issues,
			})
		}

		return handleServiceError(c, err)
	}

	if err := h.sessions.Adopt(c.Context(), session); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(h.sessionResponse(c.Context(), session.Name(), false))
}

// GetSession returns one session, including its document.
func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	name := c.Params("name")

	if _, err := h.sessions.Get(name); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(h.sessionResponse(c.Context(), name, true))
}

// UpdateSession changes session-level settings.
func (h *APIHandlers) UpdateSession(c fiber.Ctx) error {
	name := c.Params("name")

	var req UpdateSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.AssetType != "" {
		if err := h.graph.SetAssetType(c.Context(), name, req.AssetType); err != nil {
			return handleServiceError(c, err)
		}
	}

	return c.JSON(h.sessionResponse(c.Context(), name, false))
}

// CloseSession closes a session; local handles die with it.
func (h *APIHandlers) CloseSession(c fiber.Ctx) error {
	if err := h.sessions.Close(c.Context(), c.Params("name")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// AddNode adds a node by catalog type and returns its document ID.
func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	var req AddNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	nodeID, err := h.graph.AddNode(c.Context(), c.Params("name"), req.Type)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(NodeResponse{ID: nodeID, Type: req.Type})
}

// RemoveNode removes a node. ?cascade=true disconnects it first.
func (h *APIHandlers) RemoveNode(c fiber.Ctx) error {
	cascade := false

	if cascadeStr := c.Query("cascade"); cascadeStr != "" {
		parsed, err := strconv.ParseBool(cascadeStr)
		if err != nil {
			return badRequest(c, "Invalid cascade parameter")
		}

		cascade = parsed
	}

	err := h.graph.RemoveNode(c.Context(), c.Params("name"), c.Params("nodeId"), cascade)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Connect wires an output endpoint to an input endpoint.
func (h *APIHandlers) Connect(c fiber.Ctx) error {
	var req ConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.Connect(c.Context(), c.Params("name"), req.From, req.To); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusCreated)
}

// Disconnect removes one connection.
func (h *APIHandlers) Disconnect(c fiber.Ctx) error {
	var req ConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.Disconnect(c.Context(), c.Params("name"), req.From, req.To); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SetDefault sets a literal default on an unconnected input.
func (h *APIHandlers) SetDefault(c fiber.Ctx) error {
	var req SetDefaultRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.SetDefault(c.Context(), c.Params("name"), req.Endpoint, req.Value); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetDefault reads an input's default literal.
func (h *APIHandlers) GetDefault(c fiber.Ctx) error {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		return badRequest(c, "endpoint query parameter is required")
	}

	value, err := h.graph.GetDefault(c.Context(), c.Params("name"), endpoint)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"endpoint": endpoint, "value": value})
}

// DeclareInput declares a graph-level input port.
func (h *APIHandlers) DeclareInput(c fiber.Ctx) error {
	return h.declareIO(c, h.graph.DeclareInput)
}

// DeclareOutput declares a graph-level output port.
func (h *APIHandlers) DeclareOutput(c fiber.Ctx) error {
	return h.declareIO(c, h.graph.DeclareOutput)
}

func (h *APIHandlers) declareIO(c fiber.Ctx, declare func(context.Context, string, string, models.DataType, *models.Literal) error) error {
	var req DeclareIORequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := declare(c.Context(), c.Params("name"), req.Name, req.Type, req.Default); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusCreated)
}

// RemoveInput removes a graph-level input and its boundary connections.
func (h *APIHandlers) RemoveInput(c fiber.Ctx) error {
	if err := h.graph.RemoveInput(c.Context(), c.Params("name"), c.Params("ioName")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveOutput removes a graph-level output and its boundary connections.
func (h *APIHandlers) RemoveOutput(c fiber.Ctx) error {
	if err := h.graph.RemoveOutput(c.Context(), c.Params("name"), c.Params("ioName")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// BuildTransient materializes the session as a live transient instance.
func (h *APIHandlers) BuildTransient(c fiber.Ctx) error {
	var req BuildTransientRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	ref, err := h.authoring.BuildTransient(c.Context(), c.Params("name"), req.NameHint)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ref)
}

// OverwriteTransient replaces the transient instance contents.
func (h *APIHandlers) OverwriteTransient(c fiber.Ctx) error {
	var req OverwriteTransientRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	err := h.authoring.OverwriteTransient(c.Context(), c.Params("name"), req.ForceUniqueIdentity)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// BuildToAsset persists the session document as a new durable asset.
func (h *APIHandlers) BuildToAsset(c fiber.Ctx) error {
	var req BuildAssetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ref, err := h.authoring.BuildToAsset(c.Context(), c.Params("name"), materializer.BuildRequest{
		AuthorTag:   req.AuthorTag,
		AssetName:   req.AssetName,
		StoragePath: req.StoragePath,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ref)
}

// StartAudition plays the session through a host sink.
func (h *APIHandlers) StartAudition(c fiber.Ctx) error {
	playback, err := h.authoring.StartAudition(c.Context(), c.Params("name"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(playback)
}

// StopAudition halts playback.
func (h *APIHandlers) StopAudition(c fiber.Ctx) error {
	if err := h.authoring.StopAudition(c.Context(), c.Params("name")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SetCrossfade adjusts the live-update blend time.
func (h *APIHandlers) SetCrossfade(c fiber.Ctx) error {
	var req CrossfadeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.authoring.SetCrossfade(c.Params("name"), time.Duration(req.CrossfadeMS)*time.Millisecond)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ListNodeTypes enumerates the catalog, when the backing catalog supports
// enumeration.
func (h *APIHandlers) ListNodeTypes(c fiber.Ctx) error {
	lister, ok := h.catalog.(catalogLister)
	if !ok {
		return notFound(c, "catalog does not support enumeration")
	}

	return c.JSON(fiber.Map{"types": lister.Types()})
}

// GetNodeType looks up one catalog entry by identifier.
func (h *APIHandlers) GetNodeType(c fiber.Ctx) error {
	typeID, err := models.ParseNodeTypeID(c.Params("id"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	nodeType, err := h.catalog.Lookup(c.Context(), typeID)
	if err != nil {
		return notFound(c, "node type not registered")
	}

	return c.JSON(nodeType)
}

// HealthCheck reports API liveness.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "open_sessions": len(h.sessions.List())})
}

func (h *APIHandlers) sessionResponse(ctx context.Context, name string, includeDocument bool) *SessionResponse {
	session, err := h.sessions.Get(name)
	if err != nil {
		return &SessionResponse{Name: name}
	}

	resp := &SessionResponse{
		Name:        name,
		State:       string(session.State()),
		Auditioning: h.authoring.Auditioning(name),
	}

	if includeDocument {
		resp.Document = session.Snapshot()
	}

	if ref := session.TransientRef(); ref.ID != "" {
		resp.Transient = &ref
	}

	if ref := session.PersistedRef(); ref.Valid() {
		resp.Persisted = &ref
	}

	if bridge, berr := h.sessions.Bridge(name); berr == nil {
		resp.LiveUpdating = bridge.Enabled()
	}

	return resp
}
