package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/middleware"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/photos"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/reports"
)

type ReportHandler struct {
	svc *reports.Service
}

func NewReportHandler(svc *reports.Service) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// GetReports returns all public reports, newest first.
func (h *ReportHandler) GetReports(c *gin.Context) {
	list, err := h.svc.ListPublic(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetReportsMap returns public reports as a GeoJSON FeatureCollection.
func (h *ReportHandler) GetReportsMap(c *gin.Context) {
	list, err := h.svc.ListPublic(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range list {
		if r.Latitude == nil || r.Longitude == nil {
			continue
		}
		f := geojson.NewPointFeature([]float64{*r.Longitude, *r.Latitude})
		f.ID = r.ID
		f.SetProperty("description", r.Description)
		f.SetProperty("address", r.Address)
		f.SetProperty("status", string(r.Status))
		f.SetProperty("vote_count", r.VoteCount)
		f.SetProperty("urgency_score", r.UrgencyScore)
		f.SetProperty("created_at", r.CreatedAt)
		fc.AddFeature(f)
	}
	c.JSON(http.StatusOK, fc)
}

// GetReport returns a single report. Private reports are only visible to
// their author and admins.
func (h *ReportHandler) GetReport(c *gin.Context) {
	var viewer *auth.Principal
	if p, ok := middleware.Principal(c); ok {
		viewer = &p
	}

	report, err := h.svc.Get(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetMyReports returns the caller's reports, public and private.
func (h *ReportHandler) GetMyReports(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	list, err := h.svc.ListByAuthor(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateReport accepts either JSON or multipart/form-data with "photos" files.
func (h *ReportHandler) CreateReport(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	var (
		input   models.CreateReportRequest
		uploads []reports.PhotoUpload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, "Invalid form data")
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, "Invalid form data")
			return
		}
		files := form.File["photos"]
		if len(files) > photos.MaxPhotos {
			badRequest(c, "Too many photos")
			return
		}
		opened, closeAll, err := openUploads(files)
		defer closeAll()
		if err != nil {
			badRequest(c, "Could not read uploaded photos")
			return
		}
		uploads = opened
	} else if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	report, err := h.svc.Create(c.Request.Context(), p, input, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func openUploads(files []*multipart.FileHeader) ([]reports.PhotoUpload, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, cl := range closers {
			cl.Close()
		}
	}

	uploads := make([]reports.PhotoUpload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, f)
		uploads = append(uploads, reports.PhotoUpload{
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

// UpdateStatus changes a report's status (author or admin).
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	var input models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Status is required")
		return
	}

	report, err := h.svc.SetStatus(c.Request.Context(), p, c.Param("id"), input.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// VoteReport records the caller's vote on a public report.
func (h *ReportHandler) VoteReport(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	report, err := h.svc.Vote(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Vote recorded",
		"vote_count":    report.VoteCount,
		"urgency_score": report.UrgencyScore,
	})
}
