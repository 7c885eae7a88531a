// Package handler wires the attendance domain to the HTTP surface.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/campus"
	"campusattend/internal/config"
	"campusattend/internal/facematch"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/session"
	"campusattend/internal/students"
	"campusattend/internal/verify"
	"campusattend/internal/vision"
)

// SessionService is the session lifecycle surface the handler needs.
type SessionService interface {
	Open(ctx context.Context, p session.OpenParams) (session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Current(ctx context.Context) (*session.Session, error)
	Close(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context, limit int) ([]session.Session, error)
}

// Recorder commits verified claims.
type Recorder interface {
	Record(ctx context.Context, rec attendance.Record) (attendance.Result, error)
}

// CampusStore reads and writes the campus config singleton.
type CampusStore interface {
	Get(ctx context.Context) (*campus.Config, error)
	Upsert(ctx context.Context, cfg campus.Config) error
}

// StudentDirectory is the student/face-template surface the handler needs.
type StudentDirectory interface {
	Create(ctx context.Context, st students.Student) (students.Student, error)
	Get(ctx context.Context, id string) (*students.Student, error)
	GetByUserID(ctx context.Context, userID string) (*students.Student, error)
	List(ctx context.Context) ([]students.Student, error)
	UpsertFaceTemplate(ctx context.Context, studentID, image string) error
}

// FaceMatcher runs the camera-path scan.
type FaceMatcher interface {
	Recognize(ctx context.Context, capturedImage, classFilter string) (facematch.Outcome, error)
}

// AttendanceLister reads records and the ledger for staff monitors.
type AttendanceLister interface {
	ListRecords(ctx context.Context, sessionID string) ([]attendance.Record, error)
	ListLedger(ctx context.Context, date time.Time) ([]attendance.LedgerEntry, error)
}

// Handler holds the API dependencies.
type Handler struct {
	cfg      config.App
	log      *zap.Logger
	sessions SessionService
	recorder Recorder
	campus   CampusStore
	students StudentDirectory
	faces    FaceMatcher
	lister   AttendanceLister
	events   queue.Queue
}

// New creates a handler.
func New(cfg config.App, log *zap.Logger, sessions SessionService, recorder Recorder, campusStore CampusStore, directory StudentDirectory, faces FaceMatcher, lister AttendanceLister, events queue.Queue) *Handler {
	return &Handler{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		recorder: recorder,
		campus:   campusStore,
		students: directory,
		faces:    faces,
		lister:   lister,
		events:   events,
	}
}

// Routes registers all API routes on the router.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/v1/auth/token", h.IssueToken)

	authed := r.Group("/v1", auth.Bearer(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	authed.GET("/sessions/current", h.CurrentSession)
	authed.POST("/attendance/claims", auth.RequireRole(auth.RoleStudent), h.SubmitClaim)

	staff := authed.Group("", auth.RequireRole(auth.RoleStaff))
	staff.GET("/campus/config", h.GetCampusConfig)
	staff.PUT("/campus/config", h.UpdateCampusConfig)
	staff.POST("/sessions", h.OpenSession)
	staff.GET("/sessions", h.ListSessions)
	staff.POST("/sessions/:id/close", h.CloseSession)
	staff.GET("/sessions/:id/records", h.ListSessionRecords)
	staff.GET("/attendance/ledger", h.ListLedger)
	staff.POST("/students", h.CreateStudent)
	staff.GET("/students", h.ListStudents)
	staff.GET("/students/:id", h.GetStudent)
	staff.POST("/faces/register", h.RegisterFace)
	staff.POST("/faces/attempts", h.FaceAttempt)
}

// ---------- Auth ----------

type tokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// IssueToken issues a role-scoped token pair. Stands in for the hosted
// identity provider in deployments without one.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != auth.RoleStudent && req.Role != auth.RoleStaff {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student or staff"})
		return
	}

	tokens, err := auth.Issue(req.UserID, req.Role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// ---------- Campus config ----------

type campusConfigRequest struct {
	Latitude       *float64 `json:"latitude" binding:"required"`
	Longitude      *float64 `json:"longitude" binding:"required"`
	AllowedRadiusM *float64 `json:"allowed_radius_m" binding:"required"`
	CampusIP       string   `json:"campus_ip"`
	CampusIPRange  string   `json:"campus_ip_range"`
	GPSEnabled     bool     `json:"gps_enabled"`
	WifiEnabled    bool     `json:"wifi_enabled"`
}

func (h *Handler) GetCampusConfig(c *gin.Context) {
	cfg, err := h.campus.Get(c.Request.Context())
	if err != nil {
		h.internalError(c, "load campus config", err)
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "campus not configured"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) UpdateCampusConfig(c *gin.Context) {
	var req campusConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := campus.Config{
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		AllowedRadiusM: *req.AllowedRadiusM,
		CampusIP:       req.CampusIP,
		CampusIPRange:  req.CampusIPRange,
		GPSEnabled:     req.GPSEnabled,
		WifiEnabled:    req.WifiEnabled,
	}
	if err := h.campus.Upsert(c.Request.Context(), cfg); err != nil {
		h.internalError(c, "save campus config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ---------- Sessions ----------

type openSessionRequest struct {
	Course          string `json:"course" binding:"required"`
	Subject         string `json:"subject" binding:"required"`
	Batch           string `json:"batch"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
}

func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)
	sess, err := h.sessions.Open(c.Request.Context(), session.OpenParams{
		Course:          req.Course,
		Subject:         req.Subject,
		Batch:           req.Batch,
		DurationMinutes: req.DurationMinutes,
		StartedBy:       claims.Subject,
	})
	if err != nil {
		h.internalError(c, "open session", err)
		return
	}

	metrics.SessionsOpenedTotal.Inc()
	h.publish(c.Request.Context(), queue.Event{Type: queue.TypeSessionOpened, SessionID: sess.ID, At: sess.StartedAt})
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) CurrentSession(c *gin.Context) {
	sess, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		h.internalError(c, "load current session", err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) CloseSession(c *gin.Context) {
	sess, err := h.sessions.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.internalError(c, "close session", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListSessions(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ---------- Claims ----------

type claimRequest struct {
	SessionID  string   `json:"session_id" binding:"required"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	DeviceInfo string   `json:"device_info"`
}

// SubmitClaim is the student-facing verification endpoint. The student is
// resolved from the caller's identity and the origin IP from the request;
// neither is client-supplied.
func (h *Handler) SubmitClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	claims, _ := auth.FromContext(c)

	student, err := h.students.GetByUserID(ctx, claims.Subject)
	if err != nil {
		h.internalError(c, "resolve student", err)
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student record not found"})
		return
	}

	sess, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.internalError(c, "load session", err)
		return
	}

	campusCfg, err := h.campus.Get(ctx)
	if err != nil {
		h.internalError(c, "load campus config", err)
		return
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = verify.UnknownIP
	}

	outcome, err := verify.Evaluate(*sess, verify.Claim{
		SessionID: sess.ID,
		StudentID: student.ID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Device:    req.DeviceInfo,
		IP:        ip,
	}, campusCfg, time.Now().UTC())
	if err != nil {
		var failed *verify.FailedError
		switch {
		case errors.Is(err, verify.ErrSessionClosed):
			metrics.ClaimsTotal.WithLabelValues("expired").Inc()
			c.JSON(http.StatusGone, gin.H{"error": "session has expired or is closed"})
		case errors.As(err, &failed):
			metrics.ClaimsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusForbidden, gin.H{
				"error":          "verification failed",
				"gps_satisfied":  failed.GPSSatisfied,
				"wifi_satisfied": failed.WifiSatisfied,
			})
		default:
			metrics.ClaimsTotal.WithLabelValues("error").Inc()
			h.internalError(c, "evaluate claim", err)
		}
		return
	}

	result, err := h.recorder.Record(ctx, attendance.Record{
		SessionID:        sess.ID,
		StudentID:        student.ID,
		VerificationType: outcome.Type,
		IP:               ip,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		Device:           req.DeviceInfo,
	})
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
		h.internalError(c, "record attendance", err)
		return
	}

	if !result.Created {
		metrics.ClaimsTotal.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"already_marked":    true,
			"verification_type": result.Record.VerificationType,
			"marked_at":         result.Record.MarkedAt,
		})
		return
	}

	metrics.ClaimsTotal.WithLabelValues("accepted").Inc()
	h.publish(ctx, queue.Event{
		Type:      queue.TypeAttendanceRecorded,
		SessionID: sess.ID,
		StudentID: student.ID,
		At:        result.Record.MarkedAt,
	})
	c.JSON(http.StatusCreated, gin.H{
		"success":           true,
		"verification_type": result.Record.VerificationType,
		"marked_at":         result.Record.MarkedAt,
	})
}

// ---------- Attendance listings ----------

func (h *Handler) ListSessionRecords(c *gin.Context) {
	records, err := h.lister.ListRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, "list records", err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) ListLedger(c *gin.Context) {
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}
	entries, err := h.lister.ListLedger(c.Request.Context(), date)
	if err != nil {
		h.internalError(c, "list ledger", err)
		return
	}
	if entries == nil {
		entries = []attendance.LedgerEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ---------- Students ----------

type createStudentRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	RollNo    string `json:"roll_no" binding:"required"`
	ClassName string `json:"class_name"`
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.students.Create(c.Request.Context(), students.Student{
		UserID:    req.UserID,
		Name:      req.Name,
		Email:     req.Email,
		RollNo:    req.RollNo,
		ClassName: req.ClassName,
	})
	if err != nil {
		if errors.Is(err, students.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "student already exists"})
			return
		}
		h.internalError(c, "create student", err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) ListStudents(c *gin.Context) {
	list, err := h.students.List(c.Request.Context())
	if err != nil {
		h.internalError(c, "list students", err)
		return
	}
	if list == nil {
		list = []students.Student{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, "load student", err)
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// ---------- Faces ----------

type registerFaceRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Image     string `json:"image" binding:"required"`
}

// RegisterFace stores the single reference image for a student,
// replacing any previous one.
func (h *Handler) RegisterFace(c *gin.Context) {
	var req registerFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.students.Get(c.Request.Context(), req.StudentID)
	if err != nil {
		h.internalError(c, "load student", err)
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	if err := h.students.UpsertFaceTemplate(c.Request.Context(), req.StudentID, req.Image); err != nil {
		h.internalError(c, "store face template", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_id": req.StudentID, "registered": true})
}

type faceAttemptRequest struct {
	CapturedImage string `json:"captured_image" binding:"required"`
	ClassFilter   string `json:"class_filter"`
}

// FaceAttempt runs the camera-path scan against enrolled templates.
func (h *Handler) FaceAttempt(c *gin.Context) {
	var req faceAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.faces.Recognize(c.Request.Context(), req.CapturedImage, req.ClassFilter)
	if err != nil {
		if errors.Is(err, vision.ErrNotConfigured) {
			metrics.FaceScansTotal.WithLabelValues("error").Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision service not configured"})
			return
		}
		if errors.Is(err, facematch.ErrNoCandidates) {
			metrics.FaceScansTotal.WithLabelValues("not_recognized").Inc()
			c.JSON(http.StatusOK, gin.H{"recognized": false, "message": "no enrolled faces to compare against"})
			return
		}
		metrics.FaceScansTotal.WithLabelValues("error").Inc()
		h.internalError(c, "face scan", err)
		return
	}

	switch {
	case !outcome.Recognized:
		metrics.FaceScansTotal.WithLabelValues("not_recognized").Inc()
		c.JSON(http.StatusOK, gin.H{"recognized": false, "message": "face not recognized"})
	case outcome.AlreadyMarked:
		metrics.FaceScansTotal.WithLabelValues("already_marked").Inc()
		c.JSON(http.StatusOK, gin.H{
			"recognized":     true,
			"already_marked": true,
			"student":        outcome.Student,
			"message":        "attendance already marked today",
		})
	default:
		metrics.FaceScansTotal.WithLabelValues("marked").Inc()
		h.publish(c.Request.Context(), queue.Event{
			Type:      queue.TypeAttendanceRecorded,
			StudentID: outcome.Student.ID,
			At:        outcome.MarkedAt,
		})
		c.JSON(http.StatusOK, gin.H{
			"recognized":        true,
			"attendance_marked": true,
			"student":           outcome.Student,
			"confidence":        outcome.Confidence,
			"time":              outcome.MarkedAt,
			"message":           "attendance marked",
		})
	}
}

// ---------- helpers ----------

func (h *Handler) publish(ctx context.Context, evt queue.Event) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, evt); err != nil {
		h.log.Warn("event publish failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

// internalError converts unexpected faults into a generic response so no
// internal detail leaks to clients.
func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.log.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
