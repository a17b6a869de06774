package transport

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go-product-describer/internal/config"
	apperrors "go-product-describer/internal/errors"
	"go-product-describer/internal/factory"
	"go-product-describer/internal/logger"
	"go-product-describer/internal/observer"
	"go-product-describer/internal/repository"
	"go-product-describer/internal/workflow"
	"go-product-describer/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Deps groups what the HTTP layer needs
type Deps struct {
	Config   *config.Config
	Sessions repository.SessionRepository
	Importer *factory.Importer
	Metrics  *observer.MetricsObserver
}

type handler struct {
	cfg      *config.Config
	sessions repository.SessionRepository
	importer *factory.Importer
	metrics  *observer.MetricsObserver
}

// NewHandler builds the gin engine serving the page and the session routes
func NewHandler(deps Deps) http.Handler {
	h := &handler{
		cfg:      deps.Config,
		sessions: deps.Sessions,
		importer: deps.Importer,
		metrics:  deps.Metrics,
	}

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(deps.Config.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck)
	r.GET("/metrics", h.showMetrics)

	s := r.Group("/", sessionMiddleware(deps.Sessions))
	s.GET("/", h.showPage)
	s.GET("/state", h.showState)
	s.GET("/image", h.showImage)
	s.POST("/image", h.uploadImage)
	s.POST("/image/import", h.importImage)
	s.POST("/image/remove", h.removeImage)
	s.POST("/inputs", h.updateInputs)
	s.POST("/generate", h.generate)
	s.GET("/copy", h.copyText)
	s.GET("/export", h.export)
	s.POST("/reset", h.reset)

	return r
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type pageData struct {
	View        workflow.View
	Tones       []option
	Styles      []option
	Font        config.Font
	FontFamily  template.CSS
	Placeholder string
	Notice      string
}

func (h *handler) page(v workflow.View, notice string) pageData {
	data := pageData{
		View:        v,
		Font:        h.cfg.Theme.Font,
		FontFamily:  fontFamily(h.cfg.Theme.Font),
		Placeholder: workflow.Placeholder,
		Notice:      notice,
	}
	for _, t := range models.Tones {
		data.Tones = append(data.Tones, option{Value: string(t), Label: label(string(t)), Selected: t == v.Tone})
	}
	for _, s := range models.Styles {
		data.Styles = append(data.Styles, option{Value: string(s), Label: label(string(s)), Selected: s == v.Style})
	}
	return data
}

func fontFamily(f config.Font) template.CSS {
	if f == config.FontPoppins {
		return template.CSS(`"Poppins", sans-serif`)
	}
	return template.CSS(`"Nunito Sans", sans-serif`)
}

func label(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") ||
		c.ContentType() == gin.MIMEJSON
}

// respond sends the view as JSON to API callers and redirects browsers back to the page
func (h *handler) respond(c *gin.Context, ctrl *workflow.Controller) {
	if wantsJSON(c) {
		c.JSON(http.StatusOK, ctrl.View())
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) showPage(c *gin.Context) {
	ctrl := controllerFrom(c)
	c.HTML(http.StatusOK, "index.html", h.page(ctrl.View(), ""))
}

func (h *handler) showState(c *gin.Context) {
	c.JSON(http.StatusOK, controllerFrom(c).View())
}

func (h *handler) showImage(c *gin.Context) {
	img, ok := controllerFrom(c).Image()
	if !ok {
		respondError(c, http.StatusNotFound, "no image selected", apperrors.NewNotFoundError("no image selected", nil))
		return
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, img.Data)
}

func (h *handler) uploadImage(c *gin.Context) {
	ctrl := controllerFrom(c)

	fh, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "image file is required", apperrors.NewValidationError("image file is required", err))
		return
	}
	blob, err := readUpload(fh)
	if err != nil {
		respondError(c, http.StatusBadRequest, "failed to read upload", apperrors.NewValidationError("failed to read upload", err))
		return
	}

	ctrl.SetImage(*blob)
	h.respond(c, ctrl)
}

func readUpload(fh *multipart.FileHeader) (*models.ImageBlob, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &models.ImageBlob{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *handler) importImage(c *gin.Context) {
	ctrl := controllerFrom(c)

	var req models.ImportImageRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", apperrors.NewValidationError("url is required", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.ImageFetchTimeout)
	defer cancel()

	blob, err := h.importer.Import(ctx, req.URL)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"url":        req.URL,
			"session_id": ctrl.SessionID(),
		}).Error("Failed to import image")
		respondError(c, apperrors.GetStatusCode(err), "failed to import image", err)
		return
	}

	ctrl.SetImage(*blob)
	h.respond(c, ctrl)
}

func (h *handler) removeImage(c *gin.Context) {
	ctrl := controllerFrom(c)
	ctrl.RemoveImage()
	h.respond(c, ctrl)
}

func (h *handler) updateInputs(c *gin.Context) {
	ctrl := controllerFrom(c)

	var req models.InputsRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", apperrors.NewValidationError("invalid inputs", err))
		return
	}

	var tone models.Tone
	var style models.Style
	if req.Tone != "" {
		t, ok := models.ParseTone(req.Tone)
		if !ok {
			respondError(c, http.StatusBadRequest, "invalid tone", apperrors.NewValidationError(fmt.Sprintf("unknown tone %q", req.Tone), nil))
			return
		}
		tone = t
	}
	if req.Style != "" {
		s, ok := models.ParseStyle(req.Style)
		if !ok {
			respondError(c, http.StatusBadRequest, "invalid style", apperrors.NewValidationError(fmt.Sprintf("unknown style %q", req.Style), nil))
			return
		}
		style = s
	}

	if req.Features != nil {
		ctrl.SetFeatures(*req.Features)
	}
	if tone != "" {
		ctrl.SetTone(tone)
	}
	if style != "" {
		ctrl.SetStyle(style)
	}
	h.respond(c, ctrl)
}

func (h *handler) generate(c *gin.Context) {
	ctrl := controllerFrom(c)

	// mirrors the disabled button; not a lock
	if ctrl.InFlight() {
		respondError(c, http.StatusConflict, "generation already in progress", apperrors.NewConflictError("generation already in progress"))
		return
	}

	// the page submits the features textarea along with the generate button
	if features, ok := c.GetPostForm("features"); ok {
		ctrl.SetFeatures(features)
	}

	startTime := time.Now()
	err := ctrl.Generate(c.Request.Context())
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypePrecondition) {
			if wantsJSON(c) {
				respondError(c, apperrors.GetStatusCode(err), workflow.MissingImagePrompt, err)
				return
			}
			c.HTML(http.StatusPreconditionFailed, "index.html", h.page(ctrl.View(), workflow.MissingImagePrompt))
			return
		}
		respondError(c, apperrors.GetStatusCode(err), "generation failed", err)
		return
	}

	v := ctrl.View()
	logger.WithFields(logrus.Fields{
		"session_id":         ctrl.SessionID(),
		"processing_time_ms": time.Since(startTime).Milliseconds(),
		"has_result":         v.Result != nil,
	}).Info("Generate request handled")

	h.respond(c, ctrl)
}

// reset drops the session so the next request starts from the defaults
func (h *handler) reset(c *gin.Context) {
	ctrl := controllerFrom(c)
	if ctrl.InFlight() {
		respondError(c, http.StatusConflict, "generation in progress", apperrors.NewConflictError("generation in progress"))
		return
	}

	h.sessions.Delete(ctrl.SessionID())
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logger.WithField("session_id", ctrl.SessionID()).Info("Session reset")

	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) copyText(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.String(http.StatusOK, "%s", controllerFrom(c).CopyText())
}

func (h *handler) export(c *gin.Context) {
	format, err := workflow.ParseExportFormat(c.Query("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid export format", apperrors.NewValidationError("invalid export format", err))
		return
	}

	artifact, err := controllerFrom(c).Export(format)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "export failed", apperrors.NewInternalError("export failed", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, artifact.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, artifact.ContentType, artifact.Body)
}

func (h *handler) showMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
