package router

import (
	"errors"
	"net/http"

	"LecturerVote/control"
	"LecturerVote/db"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// LecturerHandler 讲师插件的 REST 接口
type LecturerHandler struct {
	catalog *control.Catalog
	ledger  *control.Ledger
}

func NewLecturerHandler(catalog *control.Catalog, ledger *control.Ledger) *LecturerHandler {
	return &LecturerHandler{catalog: catalog, ledger: ledger}
}

type courseRequest struct {
	CourseSection string `form:"courseSection" json:"courseSection"`
}

type addRequest struct {
	CourseSection string `form:"courseSection" json:"courseSection"`
	LecturerName  string `form:"lecturerName" json:"lecturerName"`
}

type voteRequest struct {
	CourseSection string `form:"courseSection" json:"courseSection"`
	LecturerName  string `form:"lecturerName" json:"lecturerName"`
	VoteType      string `form:"voteType" json:"voteType"`
}

// 业务结果，success 为 false 时 message 是拒绝原因
type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Courses handles GET /courses，存储不可用时返回默认课程
func (h *LecturerHandler) Courses(c *gin.Context) {
	sections, err := h.catalog.ListSections(c.Request.Context())
	if err != nil {
		log.WithError(err).WithField("component", "lecturer-plugin").Warn("listing courses failed, using defaults")
		sections = h.catalog.Defaults()
	}
	c.JSON(http.StatusOK, sections)
}

// AddCourse handles POST /courses
func (h *LecturerHandler) AddCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	added, err := h.catalog.AddSection(c.Request.Context(), req.CourseSection)
	if err != nil {
		respondError(c, err)
		return
	}
	if !added {
		c.JSON(http.StatusOK, resultResponse{Success: false, Message: control.ReasonAlreadyExists})
		return
	}
	c.JSON(http.StatusOK, resultResponse{Success: true})
}

// Add handles POST /add
func (h *LecturerHandler) Add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.ledger.AddLecturer(c.Request.Context(), req.CourseSection, req.LecturerName, c.GetString(callerKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse{Success: res.Created, Message: res.Reason})
}

// Vote handles POST /vote
func (h *LecturerHandler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.ledger.Vote(c.Request.Context(), req.CourseSection, req.LecturerName, c.GetString(callerKey), req.VoteType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse{Success: res.Accepted, Message: res.Reason})
}

// List handles GET /list/:courseSection
func (h *LecturerHandler) List(c *gin.Context) {
	lecturers, err := h.ledger.ListLecturers(c.Request.Context(), c.Param("courseSection"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lecturers)
}

// 参数错误返回 400；其余都是服务端错误，只返回概括信息，细节写日志
func respondError(c *gin.Context, err error) {
	if errors.Is(err, control.ErrInvalidArgument) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.WithError(err).WithFields(log.Fields{
		"component": "lecturer-plugin",
		"path":      c.Request.URL.Path,
	}).Error("request failed")

	message := "internal error"
	if errors.Is(err, db.ErrStoreUnavailable) {
		message = "store unavailable"
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
