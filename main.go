package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/EasyRestream/EasyRestream/extension"
	"github.com/EasyRestream/EasyRestream/log"
	"github.com/EasyRestream/EasyRestream/models"
	"github.com/EasyRestream/EasyRestream/relay"
	"github.com/EasyRestream/EasyRestream/routers"
	localutils "github.com/EasyRestream/EasyRestream/utils"
	"github.com/MeloQi/EasyGoLib/db"
	"github.com/MeloQi/EasyGoLib/utils"
	"github.com/MeloQi/service"
	"github.com/common-nighthawk/go-figure"
)

var (
	gitCommitCode string
	buildDateTime string
)

type program struct {
	httpPort   int
	httpServer *http.Server
	rtmpServer *extension.RtmpServer
}

func (p *program) StopHTTP() (err error) {
	if p.httpServer == nil {
		err = fmt.Errorf("HTTP Server Not Found")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = p.httpServer.Shutdown(ctx); err != nil {
		return
	}
	return
}

func (p *program) StartHTTP() (err error) {
	p.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", p.httpPort),
		Handler:           routers.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	link := fmt.Sprintf("http://%s:%d", utils.LocalIP(), p.httpPort)
	log.Info("http server start -->", link)
	go func() {
		if err := p.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("start http server error: ", err)
		}
		log.Info("http server end")
	}()
	return
}

func (p *program) StartRtmpServer() (err error) {
	if p.rtmpServer.Enabled && p.rtmpServer.Embedded {
		log.Info("rtmp server start -->", localutils.GetFullAddress(p.rtmpServer.StreamAddr))
		go p.rtmpServer.Start()
	}
	return nil
}

func (p *program) StopRtmpServer() (err error) {
	if p.rtmpServer.Enabled && p.rtmpServer.Embedded {
		p.rtmpServer.Stop()
	}
	return nil
}

func (p *program) Start(s service.Service) (err error) {
	log.Info("********** START **********")
	if utils.IsPortInUse(p.httpPort) {
		err = fmt.Errorf("HTTP port[%d] In Use", p.httpPort)
		return
	}
	cfg := relay.GetRegistry().Config()
	if !localutils.CommandExists(cfg.FFmpegBinary) {
		err = fmt.Errorf("ffmpeg binary[%s] not found in PATH", cfg.FFmpegBinary)
		return
	}
	err = models.Init()
	if err != nil {
		return
	}
	err = routers.Init()
	if err != nil {
		return
	}
	p.StartHTTP()
	p.StartRtmpServer()

	if !utils.Debug {
		log.Debug("log files -->", utils.LogDir())
		log.SetOutput(utils.GetLogWriter())
	}
	go func() {
		for range routers.API.RestartChan {
			p.StopHTTP()
			utils.ReloadConf()
			p.StartHTTP()
		}
	}()

	go func() {
		log.Info("starting daemon for restoring jobs")
		for {
			// only jobs that were running when the process died come back;
			// a job stopped through the API stays stopped
			var jobs []models.Job
			if err := db.SQL.Where("auto_restart = ? AND status = ?", true, models.Running).Find(&jobs).Error; err != nil {
				log.Error("find job err: ", err)
				return
			}
			for _, v := range jobs {
				if relay.GetRegistry().Get(v.ID) != nil {
					continue
				}
				var rows []models.Destination
				if err := db.SQL.Where("job_id = ?", v.ID).Find(&rows).Error; err != nil {
					log.Error("find destination err: ", err)
					continue
				}
				set, _ := relay.NewDestinationSet()
				for _, row := range rows {
					if err := set.Add(relay.Destination{Name: row.Name, URL: row.URL, Enabled: row.Enabled}); err != nil {
						log.Warn("restore destination err: ", err)
					}
				}
				if len(set.Enabled()) == 0 {
					continue
				}
				source := relay.Source{URL: v.SourceURL, Quality: v.Quality}
				if err := relay.GetRegistry().StartJob(v.ID, source, set); err != nil {
					log.Error("restore job err: ", err)
					continue
				}
				log.Info("restored job ", v.ID)
			}
			time.Sleep(10 * time.Second)
		}
	}()
	return
}

func (p *program) Stop(s service.Service) (err error) {
	defer log.Info("********** STOP **********")
	defer utils.CloseLogWriter()
	p.StopHTTP()
	p.StopRtmpServer()
	relay.GetRegistry().StopAll(30 * time.Second)
	models.Close()
	return
}

func main() {
	flag.StringVar(&utils.FlagVarConfFile, "config", "", "configure file path")
	flag.Parse()
	tail := flag.Args()

	log.Info("git commit code: ", gitCommitCode)
	log.Info("build date: ", buildDateTime)
	routers.BuildVersion = fmt.Sprintf("%s.%s", routers.BuildVersion, gitCommitCode)
	routers.BuildDateTime = buildDateTime

	sec := utils.Conf().Section("service")
	svcConfig := &service.Config{
		Name:        sec.Key("name").MustString("EasyRestream_Service"),
		DisplayName: sec.Key("display_name").MustString("EasyRestream_Service"),
		Description: sec.Key("description").MustString("EasyRestream_Service"),
	}

	httpPort := utils.Conf().Section("http").Key("port").MustInt(10008)
	p := &program{
		httpPort:   httpPort,
		rtmpServer: extension.GetRtmpServer(),
	}
	s, err := service.New(p, svcConfig)
	if err != nil {
		log.Error(err)
		utils.PauseExit()
	}
	if len(tail) > 0 {
		cmd := strings.ToLower(tail[0])
		if cmd == "install" || cmd == "stop" || cmd == "start" || cmd == "uninstall" {
			figure.NewFigure("EasyRestream", "", false).Print()
			log.Info(svcConfig.Name, cmd, "...")
			if err = service.Control(s, cmd); err != nil {
				log.Error(err)
				utils.PauseExit()
			}
			log.Info(svcConfig.Name, cmd, "ok")
			return
		}
	}
	figure.NewFigure("EasyRestream", "", false).Print()
	if err = s.Run(); err != nil {
		log.Error(err)
		utils.PauseExit()
	}
}
