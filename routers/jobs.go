package routers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/EasyRestream/EasyRestream/log"
	"github.com/EasyRestream/EasyRestream/models"
	"github.com/EasyRestream/EasyRestream/relay"
	"github.com/MeloQi/EasyGoLib/db"
	"github.com/MeloQi/EasyGoLib/utils"
	"github.com/gin-gonic/gin"
	"github.com/teris-io/shortid"
)

/**
 * @apiDefine job 转推任务
 */

// destinationSetFor builds the live destination set from the persisted rows
// of one job.
func destinationSetFor(jobID string) (*relay.DestinationSet, error) {
	var rows []models.Destination
	if err := db.SQL.Where("job_id = ?", jobID).Find(&rows).Error; err != nil {
		return nil, err
	}
	set, _ := relay.NewDestinationSet()
	for _, row := range rows {
		if err := set.Add(relay.Destination{Name: row.Name, URL: row.URL, Enabled: row.Enabled}); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func setJobStatus(jobID string, status models.JobStatus) {
	if r := db.SQL.Model(&models.Job{}).Where("id = ?", jobID).Update("status", status); r.Error != nil {
		log.Warn(r.Error)
	}
}

/**
 * @api {get} /api/v1/job/start 启动转推任务
 * @apiGroup job
 * @apiName JobStart
 * @apiParam {String} [id] 已有任务的ID。传入时从数据库恢复该任务，url参数被忽略
 * @apiParam {String} [url] 直播源地址。新建任务时必填
 * @apiParam {String} [quality] 质量选择，如 source、720p
 * @apiParam {Boolean} [autoRestart=false] 服务重启后是否自动恢复该任务
 * @apiParam {String[]} [dest] 推送目标，形如 name=rtmp://host/app/key，可多次传入
 * @apiSuccess (200) {String} ID 任务的ID。后续可以通过该ID来控制任务
 */
func (h *APIHandler) JobStart(c *gin.Context) {
	type Form struct {
		ID          string   `form:"id"`
		URL         string   `form:"url"`
		Quality     string   `form:"quality"`
		AutoRestart bool     `form:"autoRestart"`
		Dests       []string `form:"dest"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("start job err: ", err)
		return
	}

	var job models.Job
	if form.ID != "" {
		r := db.SQL.Model(&models.Job{}).Where("id = ?", form.ID).First(&job)
		if r.Error != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, fmt.Sprintf("job[%s] not found", form.ID))
			return
		}
	} else {
		if form.URL == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, "url is required")
			return
		}
		job = models.Job{
			ID:          shortid.MustGenerate(),
			SourceURL:   form.URL,
			Quality:     form.Quality,
			AutoRestart: form.AutoRestart,
			Status:      models.Stopped,
		}
		if r := db.SQL.Create(&job); r.Error != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, r.Error.Error())
			return
		}
		for _, d := range form.Dests {
			name, destURL := splitDest(d)
			if err := relay.CheckDestinationURL(destURL); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
				return
			}
			row := models.Destination{
				ID:      shortid.MustGenerate(),
				JobID:   job.ID,
				Name:    name,
				URL:     destURL,
				Enabled: true,
			}
			if r := db.SQL.Create(&row); r.Error != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, r.Error.Error())
				return
			}
		}
	}

	set, err := destinationSetFor(job.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	source := relay.Source{URL: job.SourceURL, Quality: job.Quality}
	if err := relay.GetRegistry().StartJob(job.ID, source, set); err != nil {
		log.Error("start job err: ", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	log.Info("start job ", job.ID, " success")
	setJobStatus(job.ID, models.Running)
	c.IndentedJSON(200, job.ID)
}

// splitDest parses "name=url"; a bare url doubles as its own name.
func splitDest(d string) (name, destURL string) {
	if i := strings.Index(d, "="); i > 0 && !strings.Contains(d[:i], "/") {
		return d[:i], d[i+1:]
	}
	return d, d
}

/**
 * @api {get} /api/v1/job/stop 停止转推任务
 * @apiGroup job
 * @apiName JobStop
 * @apiParam {String} id 任务的ID
 * @apiUse simpleSuccess
 */
func (h *APIHandler) JobStop(c *gin.Context) {
	type Form struct {
		ID string `form:"id" binding:"required"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("stop job err: ", err)
		return
	}
	if err := relay.GetRegistry().StopJob(form.ID); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, fmt.Sprintf("job[%s] not found", form.ID))
		return
	}
	setJobStatus(form.ID, models.Stopped)
	log.Info("stop job ", form.ID, " success")
	c.IndentedJSON(200, "OK")
}

/**
 * @api {get} /api/v1/job/restart 重启转推任务
 * @apiGroup job
 * @apiName JobRestart
 * @apiParam {String} id 任务的ID
 * @apiUse simpleSuccess
 */
func (h *APIHandler) JobRestart(c *gin.Context) {
	type Form struct {
		ID string `form:"id" binding:"required"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("restart job err: ", err)
		return
	}
	if err := relay.GetRegistry().RestartJob(form.ID); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	setJobStatus(form.ID, models.Running)
	log.Info("restart job ", form.ID, " success")
	c.IndentedJSON(200, "OK")
}

/**
 * @api {get} /api/v1/job/status 查询任务状态
 * @apiGroup job
 * @apiName JobStatus
 * @apiParam {String} id 任务的ID
 * @apiSuccess (200) {String} state 任务状态
 * @apiSuccess (200) {Boolean} sourceOnline 源是否在线
 * @apiSuccess (200) {Array} destinations 各推送目标的状态
 */
func (h *APIHandler) JobStatus(c *gin.Context) {
	type Form struct {
		ID string `form:"id" binding:"required"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("job status err: ", err)
		return
	}
	snap, err := relay.GetRegistry().Status(form.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, fmt.Sprintf("job[%s] not found", form.ID))
		return
	}
	c.IndentedJSON(200, snap)
}

/**
 * @api {get} /api/v1/jobs 获取任务列表
 * @apiGroup job
 * @apiName Jobs
 * @apiParam {Number} [start] 分页开始,从零开始
 * @apiParam {Number} [limit] 分页大小
 * @apiParam {String} [sort] 排序字段
 * @apiParam {String=ascending,descending} [order] 排序顺序
 * @apiParam {String} [q] 查询参数
 * @apiSuccess (200) {Number} total 总数
 * @apiSuccess (200) {Array} rows 任务列表
 */
func (h *APIHandler) Jobs(c *gin.Context) {
	form := utils.NewPageForm()
	if err := c.Bind(form); err != nil {
		return
	}
	live := make(map[string]relay.StatusSnapshot)
	for _, snap := range relay.GetRegistry().Jobs() {
		live[snap.JobID] = snap
	}
	var stored []models.Job
	if err := db.SQL.Find(&stored).Error; err != nil {
		log.Warn(err)
	}
	jobs := make([]interface{}, 0)
	for _, j := range stored {
		if form.Q != "" && !strings.Contains(strings.ToLower(j.SourceURL), strings.ToLower(form.Q)) {
			continue
		}
		row := map[string]interface{}{
			"id":          j.ID,
			"url":         j.SourceURL,
			"quality":     j.Quality,
			"autoRestart": j.AutoRestart,
			"state":       "stopped",
		}
		if snap, ok := live[j.ID]; ok {
			row["state"] = snap.State
			row["sourceOnline"] = snap.SourceOnline
			row["startedAt"] = utils.DateTime(snap.StartedAt)
			row["destinations"] = snap.Destinations
		}
		jobs = append(jobs, row)
	}
	pr := utils.NewPageResult(jobs)
	if form.Sort != "" {
		pr.Sort(form.Sort, form.Order)
	}
	pr.Slice(form.Start, form.Limit)
	c.IndentedJSON(200, pr)
}
