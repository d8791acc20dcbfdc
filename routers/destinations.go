package routers

import (
	"fmt"
	"net/http"

	"github.com/EasyRestream/EasyRestream/log"
	"github.com/EasyRestream/EasyRestream/models"
	"github.com/EasyRestream/EasyRestream/relay"
	"github.com/MeloQi/EasyGoLib/db"
	"github.com/gin-gonic/gin"
	"github.com/teris-io/shortid"
)

/**
 * @apiDefine destination 推送目标
 */

/**
 * @api {get} /api/v1/destination/add 添加推送目标
 * @apiGroup destination
 * @apiName DestinationAdd
 * @apiParam {String} id 任务的ID
 * @apiParam {String} name 目标名称，任务内唯一
 * @apiParam {String} url 推送地址
 * @apiParam {Boolean} [enabled=true] 是否启用
 * @apiUse simpleSuccess
 */
func (h *APIHandler) DestinationAdd(c *gin.Context) {
	type Form struct {
		ID      string `form:"id" binding:"required"`
		Name    string `form:"name" binding:"required"`
		URL     string `form:"url" binding:"required"`
		Enabled *bool  `form:"enabled"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("add destination err: ", err)
		return
	}
	enabled := form.Enabled == nil || *form.Enabled
	if err := relay.CheckDestinationURL(form.URL); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	count := int64(0)
	db.SQL.Model(&models.Job{}).Where("id = ?", form.ID).Count(&count)
	if count == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, fmt.Sprintf("job[%s] not found", form.ID))
		return
	}

	// additions take effect on the live job too: the monitor loop spawns a
	// process for a new enabled destination on its next pass
	if sup := relay.GetRegistry().Get(form.ID); sup != nil {
		if err := sup.Destinations.Add(relay.Destination{Name: form.Name, URL: form.URL, Enabled: enabled}); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
			return
		}
	}
	row := models.Destination{
		ID:      shortid.MustGenerate(),
		JobID:   form.ID,
		Name:    form.Name,
		URL:     form.URL,
		Enabled: enabled,
	}
	if r := db.SQL.Create(&row); r.Error != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, r.Error.Error())
		return
	}
	log.Info("add destination ", form.Name, " to job ", form.ID)
	c.IndentedJSON(200, "OK")
}

/**
 * @api {get} /api/v1/destination/remove 移除推送目标
 * @apiGroup destination
 * @apiName DestinationRemove
 * @apiParam {String} id 任务的ID
 * @apiParam {String} name 目标名称
 * @apiUse simpleSuccess
 */
func (h *APIHandler) DestinationRemove(c *gin.Context) {
	type Form struct {
		ID   string `form:"id" binding:"required"`
		Name string `form:"name" binding:"required"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("remove destination err: ", err)
		return
	}
	if sup := relay.GetRegistry().Get(form.ID); sup != nil {
		sup.Destinations.Remove(form.Name)
	}
	r := db.SQL.Delete(models.Destination{}, "job_id = ? AND name = ?", form.ID, form.Name)
	if r.Error != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, r.Error.Error())
		return
	}
	if r.RowsAffected == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, fmt.Sprintf("destination[%s] not found", form.Name))
		return
	}
	log.Info("remove destination ", form.Name, " from job ", form.ID)
	c.IndentedJSON(200, "OK")
}

/**
 * @api {get} /api/v1/destination/toggle 启停推送目标
 * @apiGroup destination
 * @apiName DestinationToggle
 * @apiParam {String} id 任务的ID
 * @apiParam {String} name 目标名称
 * @apiParam {Boolean} enabled 是否启用。只影响后续的启动决策，不会中断正在运行的推送
 * @apiUse simpleSuccess
 */
func (h *APIHandler) DestinationToggle(c *gin.Context) {
	type Form struct {
		ID      string `form:"id" binding:"required"`
		Name    string `form:"name" binding:"required"`
		Enabled bool   `form:"enabled"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("toggle destination err: ", err)
		return
	}
	if sup := relay.GetRegistry().Get(form.ID); sup != nil {
		sup.Destinations.SetEnabled(form.Name, form.Enabled)
	}
	r := db.SQL.Model(&models.Destination{}).
		Where("job_id = ? AND name = ?", form.ID, form.Name).
		Update("enabled", form.Enabled)
	if r.Error != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, r.Error.Error())
		return
	}
	if r.RowsAffected == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, fmt.Sprintf("destination[%s] not found", form.Name))
		return
	}
	c.IndentedJSON(200, "OK")
}

/**
 * @api {get} /api/v1/destination/test 测试推送地址
 * @apiGroup destination
 * @apiName DestinationTest
 * @apiParam {String} url 推送地址。发送几秒测试画面验证该地址可用
 * @apiUse simpleSuccess
 */
func (h *APIHandler) DestinationTest(c *gin.Context) {
	type Form struct {
		URL string `form:"url" binding:"required"`
	}
	var form Form
	err := c.Bind(&form)
	if err != nil {
		log.Error("test destination err: ", err)
		return
	}
	if err := relay.TestDestination(form.URL, relay.GetRegistry().Config()); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	c.IndentedJSON(200, "OK")
}
