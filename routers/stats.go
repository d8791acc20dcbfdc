package routers

import (
	"fmt"
	"sync"
	"time"

	"github.com/EasyRestream/EasyRestream/relay"
	"github.com/MeloQi/EasyGoLib/utils"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

/**
 * @apiDefine stats 统计
 */

type percentData struct {
	Time utils.DateTime `json:"time"`
	Used float64        `json:"used"`
}

const maxSamples = 60

var (
	sampleLock sync.Mutex
	cpuData    []percentData
	memData    []percentData
)

func init() {
	go func() {
		for {
			now := utils.DateTime(time.Now())
			cpuUsed := float64(0)
			if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
				cpuUsed = percents[0]
			}
			memUsed := float64(0)
			if stat, err := mem.VirtualMemory(); err == nil {
				memUsed = stat.UsedPercent
			}
			sampleLock.Lock()
			cpuData = append(cpuData, percentData{Time: now, Used: cpuUsed})
			memData = append(memData, percentData{Time: now, Used: memUsed})
			if len(cpuData) > maxSamples {
				cpuData = cpuData[len(cpuData)-maxSamples:]
			}
			if len(memData) > maxSamples {
				memData = memData[len(memData)-maxSamples:]
			}
			sampleLock.Unlock()
			time.Sleep(5 * time.Second)
		}
	}()
}

/**
 * @api {get} /api/v1/serverinfo 获取服务信息
 * @apiGroup stats
 * @apiName ServerInfo
 * @apiSuccess (200) {String} Hardware 硬件信息
 * @apiSuccess (200) {String} RunningTime 运行时间
 * @apiSuccess (200) {String} StartUpTime 启动时间
 * @apiSuccess (200) {String} Server 服务版本
 * @apiSuccess (200) {Number} JobCount 任务数
 * @apiSuccess (200) {Array} CpuData CPU使用率采样
 * @apiSuccess (200) {Array} MemData 内存使用率采样
 */
func (h *APIHandler) ServerInfo(c *gin.Context) {
	up := time.Since(startTime)
	days := int(up.Hours()) / 24
	hours := int(up.Hours()) % 24
	mins := int(up.Minutes()) % 60
	sampleLock.Lock()
	cpuSamples := append([]percentData(nil), cpuData...)
	memSamples := append([]percentData(nil), memData...)
	sampleLock.Unlock()
	c.IndentedJSON(200, map[string]interface{}{
		"Hardware":    "-",
		"RunningTime": fmt.Sprintf("%d Days %d Hours %d Mins", days, hours, mins),
		"StartUpTime": utils.DateTime(startTime),
		"Server":      fmt.Sprintf("EasyRestream %s (%s)", BuildVersion, BuildDateTime),
		"JobCount":    relay.GetRegistry().JobSize(),
		"CpuData":     cpuSamples,
		"MemData":     memSamples,
	})
}
