package routers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/penggy/cors"
)

/**
 * @apiDefine simpleSuccess
 * @apiSuccessExample 成功
 * HTTP/1.1 200 OK
 */

var (
	BuildVersion  = "v1.0"
	BuildDateTime = ""
)

var Router *gin.Engine

type APIHandler struct {
	RestartChan chan bool
}

var API = &APIHandler{
	RestartChan: make(chan bool),
}

var startTime = time.Now()

func Init() (err error) {
	gin.SetMode(gin.ReleaseMode)
	Router = gin.New()
	pprof.Register(Router)
	Router.Use(gin.Recovery())
	Router.Use(cors.Default())

	Router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "EasyRestream %s", BuildVersion)
	})

	api := Router.Group("/api/v1")
	api.GET("/serverinfo", API.ServerInfo)
	api.GET("/restart", API.Restart)

	api.GET("/job/start", API.JobStart)
	api.GET("/job/stop", API.JobStop)
	api.GET("/job/restart", API.JobRestart)
	api.GET("/job/status", API.JobStatus)
	api.GET("/jobs", API.Jobs)

	api.GET("/destination/add", API.DestinationAdd)
	api.GET("/destination/remove", API.DestinationRemove)
	api.GET("/destination/toggle", API.DestinationToggle)
	api.GET("/destination/test", API.DestinationTest)
	return
}

/**
 * @api {get} /api/v1/restart 重启服务
 * @apiGroup sys
 * @apiName Restart
 * @apiUse simpleSuccess
 */
func (h *APIHandler) Restart(c *gin.Context) {
	c.IndentedJSON(200, "OK")
	go func() {
		select {
		case h.RestartChan <- true:
		default:
		}
	}()
}
