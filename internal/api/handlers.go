package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/usecase/pipeline"
)

// Handler exposes the pipeline over HTTP.
type Handler struct {
	service    *pipeline.Service
	dispatcher *pipeline.Dispatcher
}

func NewHandler(service *pipeline.Service, dispatcher *pipeline.Dispatcher) *Handler {
	return &Handler{service: service, dispatcher: dispatcher}
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSubmitExtraction validates the payload and queues it on the
// dispatcher. The caller polls job status by source job id.
func (h *Handler) HandleSubmitExtraction(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "unreadable request body"}
	}
	input, err := pipeline.ParseExtractionPayload(raw)
	if err != nil {
		return &APIError{Status: http.StatusBadRequest, Code: "INVALID_PAYLOAD", Message: err.Error()}
	}
	if err := h.dispatcher.Enqueue(c.Request().Context(), input); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"source_job_id": input.SourceJobID,
		"status":        "queued",
	})
}

func (h *Handler) HandleJobStatus(c echo.Context) error {
	view, err := h.service.GetJobStatus(c.Request().Context(), c.Param("sourceJobId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) HandleReviewQueue(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "limit must be a non-negative integer"}
		}
		limit = parsed
	}
	views, err := h.service.ListReviewQueue(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

type reviewActionRequest struct {
	ReviewerID  string            `json:"reviewer_id"`
	Reason      string            `json:"reason,omitempty"`
	Corrections map[string]string `json:"corrections,omitempty"`
}

func (h *Handler) HandleClaimReview(c echo.Context) error {
	id, req, err := reviewAction(c)
	if err != nil {
		return err
	}
	view, err := h.service.ClaimReview(c.Request().Context(), pipeline.ClaimReviewInput{
		ReviewItemID: id,
		ReviewerID:   req.ReviewerID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) HandleCorrectReview(c echo.Context) error {
	id, req, err := reviewAction(c)
	if err != nil {
		return err
	}
	view, err := h.service.CorrectReview(c.Request().Context(), pipeline.CorrectReviewInput{
		ReviewItemID: id,
		ReviewerID:   req.ReviewerID,
		Corrections:  req.Corrections,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) HandleApproveReview(c echo.Context) error {
	id, req, err := reviewAction(c)
	if err != nil {
		return err
	}
	result, err := h.service.ApproveReview(c.Request().Context(), pipeline.ApproveReviewInput{
		ReviewItemID: id,
		ReviewerID:   req.ReviewerID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) HandleRejectReview(c echo.Context) error {
	id, req, err := reviewAction(c)
	if err != nil {
		return err
	}
	view, err := h.service.RejectReview(c.Request().Context(), pipeline.RejectReviewInput{
		ReviewItemID: id,
		ReviewerID:   req.ReviewerID,
		Reason:       req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

type createConfigRequest struct {
	OrganizationID uint64                `json:"organization_id"`
	RecordType     string                `json:"record_type"`
	Rules          []domain.FieldRule    `json:"rules"`
	Settings       domain.ConfigSettings `json:"settings"`
}

func (h *Handler) HandleCreateConfig(c echo.Context) error {
	var req createConfigRequest
	if err := c.Bind(&req); err != nil {
		return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "malformed request body"}
	}
	view, err := h.service.CreateFieldConfig(c.Request().Context(), pipeline.CreateFieldConfigInput{
		OrganizationID: req.OrganizationID,
		RecordType:     req.RecordType,
		Rules:          req.Rules,
		Settings:       req.Settings,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) HandleGetActiveConfig(c echo.Context) error {
	orgID, err := strconv.ParseUint(c.Param("org"), 10, 64)
	if err != nil || orgID == 0 {
		return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "organization id must be a positive integer"}
	}
	view, err := h.service.GetActiveFieldConfig(c.Request().Context(), orgID, c.Param("recordType"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) HandleRetryTransfer(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.service.RetryTransfer(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) HandleCancelTransfer(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.service.CancelTransfer(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

type batchTransferRequest struct {
	OrganizationID uint64 `json:"organization_id"`
	Limit          int    `json:"limit,omitempty"`
}

func (h *Handler) HandleBatchTransfer(c echo.Context) error {
	var req batchTransferRequest
	if err := c.Bind(&req); err != nil {
		return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "malformed request body"}
	}
	if req.OrganizationID == 0 {
		return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "organization_id must be a positive integer"}
	}
	result, err := h.service.BatchTransfer(c.Request().Context(), req.OrganizationID, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func reviewAction(c echo.Context) (uint64, reviewActionRequest, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return 0, reviewActionRequest{}, err
	}
	var req reviewActionRequest
	if err := c.Bind(&req); err != nil {
		return 0, reviewActionRequest{}, &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "malformed request body"}
	}
	return id, req, nil
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: name + " must be a positive integer"}
	}
	return id, nil
}
