package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"realreview/internal/audit"
	"realreview/internal/filestore"
	"realreview/internal/image/models"
	"realreview/internal/image/service"
	"realreview/internal/platform/middleware"
	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
	"realreview/pkg/platform/httputil"
	"realreview/pkg/platform/sentinel"
	"realreview/pkg/requestcontext"
)

const (
	DefaultMaxUploadSize = 10 << 20

	multipartMemory = 1 << 20
	sniffLen        = 512
)

// Service defines the image operations the HTTP layer needs.
type Service interface {
	Upload(ctx context.Context, owner id.UserID, req service.UploadRequest) (*models.Image, error)
	ListApproved(ctx context.Context, location string, page, size int) ([]*models.ImageView, error)
	GetDetails(ctx context.Context, imageID id.ImageID) (*models.ImageView, error)
	ListMine(ctx context.Context, owner id.UserID) ([]*models.ImageView, error)
	ListPending(ctx context.Context, actor id.UserID) ([]*models.ImageView, error)
	Approve(ctx context.Context, imageID id.ImageID, actor id.UserID) error
	Reject(ctx context.Context, imageID id.ImageID, actor id.UserID, reason string) error
	Rate(ctx context.Context, imageID id.ImageID, userID id.UserID, value int) (*models.Rating, error)
	ListRatings(ctx context.Context, imageID id.ImageID) ([]*models.Rating, error)
	History(ctx context.Context, imageID id.ImageID, actor id.UserID) ([]*audit.ModerationEvent, error)
}

// Files opens stored uploads for download.
type Files interface {
	Open(name string) (filestore.File, error)
}

// Handler serves /images and /admin endpoints.
type Handler struct {
	service       Service
	files         Files
	logger        *slog.Logger
	maxUploadSize int64
}

type Option func(*Handler)

// WithMaxUploadSize caps the multipart request body in bytes.
func WithMaxUploadSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadSize = n
		}
	}
}

func New(service Service, files Files, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:       service,
		files:         files,
		logger:        logger,
		maxUploadSize: DefaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterPublic mounts the browse endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/images/public", h.HandleListPublic)
	r.Get("/images/{id}/details", h.HandleDetails)
	r.Get("/images/{id}/ratings", h.HandleListRatings)
	r.Get("/images/{filename}", h.HandleServeFile)
}

// RegisterProtected mounts endpoints that require a bearer token. The caller
// installs the auth middleware; role checks are applied here.
func (h *Handler) RegisterProtected(r chi.Router) {
	requireUser := middleware.RequireRole(h.logger, id.RoleUser)
	requireMember := middleware.RequireRole(h.logger, id.RoleUser, id.RoleAdmin)
	requireAdmin := middleware.RequireRole(h.logger, id.RoleAdmin)

	r.With(requireUser).Post("/images/upload", h.HandleUpload)
	r.With(requireMember).Get("/images/my", h.HandleListMine)
	r.With(requireMember).Post("/images/{id}/rate", h.HandleRate)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/images/{id}/approve", h.HandleApprove)
		r.Post("/images/{id}/reject", h.HandleReject)
		r.Get("/admin/pending-images", h.HandleListPending)
		r.Get("/admin/images/{id}/history", h.HandleHistory)
	})
}

// HandleUpload handles POST /images/upload (multipart: file, location).
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file exceeds the maximum upload size"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart form"))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file is required"))
		return
	}
	defer file.Close()

	if err := checkImage(file, header); err != nil {
		httputil.WriteError(w, err)
		return
	}

	img, err := h.service.Upload(ctx, requestcontext.UserID(ctx), service.UploadRequest{
		File:         file,
		OriginalName: header.Filename,
		Location:     r.FormValue("location"),
	})
	if err != nil {
		h.logFailure(ctx, "upload failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "image uploaded",
		"request_id", requestID,
		"image_id", img.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, &models.UploadResponse{
		Message: "Image uploaded and location validated: " + img.Location,
		Image:   models.NewImageResponse(&models.ImageView{Image: img}),
	})
}

// checkImage rejects empty and non-image parts, then rewinds the part.
func checkImage(file multipart.File, header *multipart.FileHeader) error {
	if header.Size == 0 {
		return dErrors.New(dErrors.CodeValidation, "file is empty")
	}
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read file")
	}
	if !strings.HasPrefix(http.DetectContentType(buf[:n]), "image/") {
		return dErrors.New(dErrors.CodeValidation, "file must be an image")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read file")
	}
	return nil
}

// HandleListPublic handles GET /images/public?location=&page=&size=.
func (h *Handler) HandleListPublic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	size, err := intParam(q.Get("size"), "size")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views, err := h.service.ListApproved(ctx, q.Get("location"), page, size)
	if err != nil {
		h.logFailure(ctx, "list approved failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewImageResponses(views))
}

// HandleServeFile handles GET /images/{filename}.
func (h *Handler) HandleServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	f, err := h.files.Open(name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "file not found"))
			return
		}
		h.logFailure(r.Context(), "open file failed", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read file"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read file"))
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// HandleDetails handles GET /images/{id}/details.
func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetDetails(ctx, imageID)
	if err != nil {
		h.logFailure(ctx, "get details failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewImageResponse(view))
}

// HandleListRatings handles GET /images/{id}/ratings.
func (h *Handler) HandleListRatings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	ratings, err := h.service.ListRatings(ctx, imageID)
	if err != nil {
		h.logFailure(ctx, "list ratings failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewRatingResponses(ratings))
}

// HandleListMine handles GET /images/my.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.service.ListMine(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "list own images failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewImageResponses(views))
}

// HandleRate handles POST /images/{id}/rate?rating=.
func (h *Handler) HandleRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("rating")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "rating is required"))
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "rating must be an integer"))
		return
	}

	rating, err := h.service.Rate(ctx, imageID, requestcontext.UserID(ctx), value)
	if err != nil {
		h.logFailure(ctx, "rating failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewRatingResponses([]*models.Rating{rating})[0])
}

// HandleApprove handles POST /images/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Approve(ctx, imageID, requestcontext.UserID(ctx)); err != nil {
		h.logFailure(ctx, "approval failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &models.MessageResponse{Message: "Image approved successfully."})
}

// HandleReject handles POST /images/{id}/reject. The body is optional.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	var reason string
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndPrepare[models.RejectRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		reason = req.Reason
	}

	if err := h.service.Reject(ctx, imageID, requestcontext.UserID(ctx), reason); err != nil {
		h.logFailure(ctx, "rejection failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &models.MessageResponse{Message: "Image rejected."})
}

// HandleListPending handles GET /admin/pending-images.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.service.ListPending(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "list pending failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewImageResponses(views))
}

// HandleHistory handles GET /admin/images/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	events, err := h.service.History(ctx, imageID, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "history lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func imageIDParam(w http.ResponseWriter, r *http.Request) (id.ImageID, bool) {
	imageID, err := id.ParseImageID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid image id"))
		return id.ImageID{}, false
	}
	return imageID, true
}

// intParam parses an optional query integer; empty means 0. Range checks
// belong to the service.
func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer")
	}
	return n, nil
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
