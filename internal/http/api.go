package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"mator/internal/domain"
	"mator/internal/magnet"
	"mator/internal/metrics"
	"mator/internal/service"
	"mator/internal/storage"
	"mator/internal/sweeper"
)

// Downloader drives one magnet request to a terminal outcome.
type Downloader interface {
	Download(ctx context.Context, magnetURI string) (*domain.Success, *domain.Failure)
	ActiveTransfers() int
}

// Options carries the web-layer policy knobs.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int64
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	downloads Downloader
	history   service.HistoryService
	storage   storage.Service
	bucket    string
	sweeper   *sweeper.Sweeper
	auth      service.AuthService
	gatherer  prometheus.Gatherer
	logger    *logrus.Logger

	limiter   *rate.Limiter
	admission *semaphore.Weighted
}

func NewHandler(downloads Downloader, history service.HistoryService, store storage.Service, bucket string, sweep *sweeper.Sweeper, auth service.AuthService, gatherer prometheus.Gatherer, logger *logrus.Logger, opts Options) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 5
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 10
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	return &Handler{
		downloads: downloads,
		history:   history,
		storage:   store,
		bucket:    bucket,
		sweeper:   sweep,
		auth:      auth,
		gatherer:  gatherer,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst),
		admission: semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())
	router.Use(h.metricsMiddleware())
	router.Use(h.rateLimitMiddleware())

	router.GET("/", h.downloadForm)
	router.POST("/", h.submitDownload)
	router.GET("/download", h.downloadForm)
	router.POST("/download", h.submitDownload)
	router.GET("/status", h.status)
	router.GET("/health", h.status)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.POST("/validate-magnet", h.validateMagnet)
		api.GET("/downloads", h.requireOperator(), h.listDownloads)

		admin := api.Group("/admin")
		{
			admin.POST("/login", h.login)
			admin.GET("/archives", h.requireOperator(), h.listArchives)
			admin.POST("/sweep", h.requireOperator(), h.runSweep)
		}
	}
}

type downloadRequest struct {
	Magnet string `json:"magnet"`
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.FullPath() {
		case "/health", "/status", "/metrics":
			c.Next()
			return
		}
		if !h.limiter.Allow() {
			metrics.RateLimitedTotal.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please slow down."})
			return
		}

		c.Next()
	}
}

// requireOperator guards admin routes with a bearer token. When no operator
// credentials are configured the routes do not exist.
func (h *Handler) requireOperator() gin.HandlerFunc {
	const bearerPrefix = "Bearer "
	return func(c *gin.Context) {
		if h.auth == nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if err := h.auth.Verify(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Next()
	}
}

const downloadPage = `<!DOCTYPE html>
<html>
<head><title>mator</title></head>
<body>
  <h1>Magnet Download</h1>
  <form method="post" action="/download">
    <input type="text" name="magnet" size="80" placeholder="magnet:?xt=urn:btih:..." required>
    <button type="submit">Download</button>
  </form>
</body>
</html>
`

func (h *Handler) downloadForm(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(downloadPage))
}

func (h *Handler) submitDownload(c *gin.Context) {
	magnetURI := magnetFromRequest(c)

	if !h.admission.TryAcquire(1) {
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many active downloads. Please try again shortly."})
		return
	}
	defer h.admission.Release(1)

	success, fail := h.downloads.Download(c.Request.Context(), magnetURI)
	if fail != nil {
		c.JSON(statusForKind(fail.Kind), gin.H{"kind": fail.Kind, "error": fail.Message})
		return
	}

	c.FileAttachment(success.Path, success.Name)
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":               "ok",
		"service":              "Server-side Magnet Downloads",
		"server_side_torrents": true,
		"browser_support":      false,
		"active_transfers":     h.downloads.ActiveTransfers(),
	})
}

func (h *Handler) validateMagnet(c *gin.Context) {
	magnetURI := strings.TrimSpace(magnetFromRequest(c))

	if magnetURI == "" {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "Empty magnet link"})
		return
	}
	if !magnet.Validate(magnetURI) {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "Invalid magnet link format"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "message": "Valid magnet link"})
}

func (h *Handler) login(c *gin.Context) {
	if h.auth == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.auth.Login(req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) listDownloads(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history service not configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	downloads, err := h.history.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]DownloadResponse, len(downloads))
	for i := range downloads {
		resp[i] = downloadToResponse(downloads[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listArchives(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage service not configured"})
		return
	}

	prefix := c.Query("prefix")
	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	presign := c.Query("presign") == "true"
	resp := make([]ArchiveObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
		if presign {
			link, err := h.storage.GetObjectURL(c.Request.Context(), h.bucket, objects[i].Key, 15*time.Minute)
			if err != nil {
				h.logger.Warnf("presign %s: %v", objects[i].Key, err)
				continue
			}
			resp[i].URL = link
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) runSweep(c *gin.Context) {
	if h.sweeper == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweeper not configured"})
		return
	}

	removed := h.sweeper.Sweep()
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// magnetFromRequest accepts the magnet URI as a form field or a JSON body,
// matching what the submit page and API clients send.
func magnetFromRequest(c *gin.Context) string {
	if strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		var req downloadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return ""
		}
		return req.Magnet
	}
	return c.PostForm("magnet")
}

func statusForKind(kind domain.FailureKind) int {
	switch kind {
	case domain.FailureEmptyInput, domain.FailureInvalidMagnetFormat, domain.FailureInvalidMagnetHandle:
		return http.StatusBadRequest
	case domain.FailureMetadataTimeout, domain.FailureDownloadTimeout, domain.FailureStalledDownload:
		return http.StatusGatewayTimeout
	case domain.FailureFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.FailureNoFilesInTorrent:
		return http.StatusUnprocessableEntity
	case domain.FailureEngineUnavailable:
		return http.StatusServiceUnavailable
	case domain.FailureEngineError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type DownloadResponse struct {
	ID              int64                  `json:"id"`
	RequestID       string                 `json:"request_id"`
	Magnet          string                 `json:"magnet"`
	InfoHash        string                 `json:"info_hash,omitempty"`
	Status          domain.DownloadStatus  `json:"status"`
	FailureKind     string                 `json:"failure_kind,omitempty"`
	Message         string                 `json:"message,omitempty"`
	TorrentName     string                 `json:"torrent_name,omitempty"`
	FileName        string                 `json:"file_name,omitempty"`
	FileSize        int64                  `json:"file_size"`
	TotalSize       int64                  `json:"total_size"`
	ArchiveLocation string                 `json:"archive_location,omitempty"`
	DurationMS      int64                  `json:"duration_ms"`
	CreatedAt       string                 `json:"created_at"`
	FinishedAt      *string                `json:"finished_at,omitempty"`
	Files           []DownloadFileResponse `json:"files"`
}

type DownloadFileResponse struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type ArchiveObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
	URL          string  `json:"url,omitempty"`
}

func downloadToResponse(d domain.Download) DownloadResponse {
	resp := DownloadResponse{
		ID:              d.ID,
		RequestID:       d.RequestID,
		Magnet:          d.MagnetURI,
		InfoHash:        d.InfoHash,
		Status:          d.Status,
		FailureKind:     d.FailureKind,
		Message:         d.Message,
		TorrentName:     d.TorrentName,
		FileName:        d.FileName,
		FileSize:        d.FileSize,
		TotalSize:       d.TotalSize,
		ArchiveLocation: d.ArchiveLocation,
		DurationMS:      d.DurationMS,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
		Files:           make([]DownloadFileResponse, len(d.Files)),
	}
	if d.FinishedAt != nil {
		v := d.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &v
	}
	for i := range d.Files {
		resp.Files[i] = DownloadFileResponse{
			Path: d.Files[i].Path,
			Size: d.Files[i].Size,
		}
	}
	return resp
}

func objectToResponse(obj storage.ObjectInfo) ArchiveObjectResponse {
	resp := ArchiveObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
