package router

import (
	"net/http"

	"LecturerVote/config"
	"LecturerVote/control"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1/plugins/lecturer"

// NewRouter 注册所有路由。gql 为 nil 时不挂载 /graphql
func NewRouter(catalog *control.Catalog, ledger *control.Ledger, conf config.ServerConf, gql http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), WithLogging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	h := NewLecturerHandler(catalog, ledger)
	api := r.Group(apiPrefix)
	{
		api.GET("/courses", h.Courses)
		api.GET("/list/:courseSection", h.List)

		authed := api.Group("", RequireCaller(conf.CallerHeader))
		authed.POST("/courses", h.AddCourse)
		authed.POST("/add", h.Add)
		authed.POST("/vote", h.Vote)
	}

	if gql != nil {
		r.Any("/graphql", OptionalCaller(conf.CallerHeader), gin.WrapH(gql))
	}
	return r
}
