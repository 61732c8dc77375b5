package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/middleware"
	"github.com/rsv-seq-eqa/eqa-server/internal/report"
	"github.com/rsv-seq-eqa/eqa-server/internal/upload"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.log.WithError(err).Warn("Health check: store unreachable")
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListDistributions(c *gin.Context) {
	distributions, err := s.reports.ListDistributions(c.Request.Context())
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distributions": distributions})
}

func (s *Server) handleParticipation(c *gin.Context) {
	participation, err := s.reports.Participation(c.Request.Context(), c.Param("distribution"))
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, participation)
}

func (s *Server) handleDistributionReport(c *gin.Context) {
	rep, err := s.reports.DistributionReport(c.Request.Context(), c.Param("distribution"), middleware.Participant(c))
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleSampleDetail(c *gin.Context) {
	view, err := s.reports.SampleDetail(c.Request.Context(),
		c.Param("distribution"), c.Param("sample"), middleware.Participant(c))
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleReportDownload streams a rendered report: users get their own report
// as JSON, the superuser gets the zip bundle with one report per
// organization.
func (s *Server) handleReportDownload(c *gin.Context) {
	distribution := c.Param("distribution")
	requester := middleware.Participant(c)

	if !requester.IsSuperuser() {
		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s_%s_report.json", requester.Organization, distribution))
		c.Header("Content-Type", "application/json")
		if err := s.archiver.WriteReport(c.Request.Context(), c.Writer, distribution, requester.Organization); err != nil {
			s.errorResponse(c, err)
		}
		return
	}

	orgs, err := s.store.ListOrganizations(c.Request.Context())
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	names := make([]string, 0, len(orgs))
	for _, org := range orgs {
		names = append(names, org.Name)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_reports.zip", distribution))
	c.Header("Content-Type", "application/zip")
	if err := s.archiver.WriteArchive(c.Request.Context(), c.Writer, distribution, names); err != nil {
		s.log.WithError(err).Error("Failed to write report bundle")
	}
}

// handleArtifactDownload serves a participant's aligned reads and coverage
// track. The file suffix selects the artifact; participants can only fetch
// their own files and the reference lab's.
func (s *Server) handleArtifactDownload(c *gin.Context) {
	distribution := c.Param("distribution")
	sample := c.Param("sample")
	participant := c.Param("participant")
	filename := c.Param("file")
	requester := middleware.Participant(c)

	if !requester.IsSuperuser() &&
		participant != requester.Organization &&
		participant != domain.ReferenceLab {
		s.errorResponse(c, domain.ErrForbidden)
		return
	}

	var kind report.ArtifactKind
	switch {
	case strings.HasSuffix(filename, ".bai"):
		kind = report.ArtifactConsensusBAI
	case strings.HasSuffix(filename, ".bw"):
		kind = report.ArtifactBigWig
	case strings.HasSuffix(filename, ".bam"):
		kind = report.ArtifactConsensusBAM
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": domain.NewAPIError("INVALID_INPUT", "unknown artifact type").WithDetails(filename),
		})
		return
	}

	path, err := s.reports.ArtifactPath(distribution, participant, sample, kind)
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) handleUpload(c *gin.Context) {
	requester := middleware.Participant(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": domain.NewAPIError("INVALID_INPUT", "invalid multipart form").WithDetails(err.Error()),
		})
		return
	}

	distribution := c.PostForm("distribution")
	sample := c.PostForm("sample")
	if distribution == "" || sample == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": domain.NewAPIError("INVALID_INPUT", "distribution and sample are required"),
		})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": domain.NewAPIError("INVALID_INPUT", "no files in upload"),
		})
		return
	}

	tmpDir, err := os.MkdirTemp("", "eqa-upload-*")
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	paths := make([]string, 0, len(files))
	for _, file := range files {
		dst := filepath.Join(tmpDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dst); err != nil {
			s.errorResponse(c, err)
			return
		}
		paths = append(paths, dst)
	}

	err = s.uploads.Accept(c.Request.Context(), upload.Request{
		Organization:   requester.Organization,
		Distribution:   distribution,
		Sample:         sample,
		SequencingType: c.PostForm("sequencing_type"),
		Paths:          paths,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": domain.NewAPIError("UPLOAD_REJECTED", "upload rejected").WithDetails(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "accepted",
		"files":  len(paths),
	})
}

func (s *Server) handleListNotifications(c *gin.Context) {
	notes, err := s.store.ActiveNotifications(c.Request.Context(), middleware.UserEmail(c))
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

type createNotificationRequest struct {
	UserEmail string `json:"user_email" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (s *Server) handleCreateNotification(c *gin.Context) {
	if !middleware.Participant(c).IsSuperuser() {
		s.errorResponse(c, domain.ErrForbidden)
		return
	}

	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": domain.NewAPIError("INVALID_INPUT", "user_email and message are required"),
		})
		return
	}

	note, err := s.store.CreateNotification(c.Request.Context(), req.UserEmail, req.Message)
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (s *Server) handleDismissNotifications(c *gin.Context) {
	if err := s.store.DismissNotifications(c.Request.Context(), middleware.UserEmail(c)); err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "dismissed"})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	if err := s.hub.ServeWS(c.Writer, c.Request, middleware.Participant(c).Organization); err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
	}
}

// errorResponse maps service errors onto HTTP statuses and the APIError
// body.
func (s *Server) errorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrDistributionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": domain.NewAPIError("NOT_FOUND", "distribution not found"),
		})
	case errors.Is(err, domain.ErrSampleNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": domain.NewAPIError("NOT_FOUND", "sample not found"),
		})
	case errors.Is(err, domain.ErrNoSubmission):
		c.JSON(http.StatusNotFound, gin.H{
			"error": domain.NewAPIError("NO_SUBMISSION", "no scoreable submission for this participant"),
		})
	case errors.Is(err, domain.ErrReferenceMissing):
		c.JSON(http.StatusConflict, gin.H{
			"error": domain.NewAPIError("REFERENCE_MISSING", "reference lab data is missing for this sample"),
		})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error": domain.NewAPIError("FORBIDDEN", "not allowed for this participant"),
		})
	default:
		s.log.WithFields(logrus.Fields{
			"path":           c.Request.URL.Path,
			"correlation_id": c.GetString("correlation_id"),
		}).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": domain.NewAPIError("INTERNAL_ERROR", "internal server error"),
		})
	}
}
