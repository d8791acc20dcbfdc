package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/EasyRestream/EasyRestream/log"
	config "github.com/MeloQi/EasyGoLib/utils"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"gopkg.in/natefinch/lumberjack.v2"
)

type RunnerStatus int

const (
	RunnerRunning RunnerStatus = iota
	RunnerExitedNormally
	RunnerExitedWithError
)

func (s RunnerStatus) String() string {
	return [...]string{"running", "exited", "exited with error"}[s]
}

// pusher is the process handle the supervisor drives. The ffmpeg Runner is
// the production implementation; tests substitute their own through the
// supervisor's factory hook.
type pusher interface {
	Start() error
	Poll() RunnerStatus
	ExitCode() int
	Stop(grace time.Duration)
	StartedAt() time.Time
}

type pusherFactory func(jobID string, source Source, dest Destination, placeholder bool, cfg Config) pusher

// Runner owns exactly one ffmpeg process pushing the source to a single
// destination. Nobody else may signal that process. Its diagnostic stderr is
// drained line by line on a dedicated goroutine so a stalled read can never
// block stop detection or the monitor loop.
type Runner struct {
	JobID       string
	Source      Source
	Dest        Destination
	Placeholder bool

	cfg    Config
	logger *log.Logger

	lock     sync.Mutex
	cmd      *exec.Cmd
	started  time.Time
	done     chan struct{}
	exitCode int
	exitErr  error
}

func NewRunner(jobID string, source Source, dest Destination, placeholder bool, cfg Config) *Runner {
	return &Runner{
		JobID:       jobID,
		Source:      source,
		Dest:        dest,
		Placeholder: placeholder,
		cfg:         cfg,
		logger:      log.NewLogger(dest.Name, log.DestinationId),
	}
}

func newFFmpegPusher(jobID string, source Source, dest Destination, placeholder bool, cfg Config) pusher {
	return NewRunner(jobID, source, dest, placeholder, cfg)
}

// outputFormat picks the ffmpeg muxer matching the destination transport.
func outputFormat(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "flv"
	}
	switch strings.ToLower(u.Scheme) {
	case "rtsp":
		return "rtsp"
	case "srt":
		return "mpegts"
	default:
		return "flv"
	}
}

func (r *Runner) buildArgs() []string {
	outputArgs := ffmpeg.KwArgs{
		"c:v":        "libx264",
		"preset":     "veryfast",
		"tune":       "zerolatency",
		"g":          "50",
		"keyint_min": "25",
		"b:v":        r.cfg.VideoBitrate,
		"maxrate":    r.cfg.VideoBitrate,
		"bufsize":    "2M",
		"pix_fmt":    "yuv420p",
		"c:a":        "aac",
		"b:a":        r.cfg.AudioBitrate,
		"ar":         "44100",
		"f":          outputFormat(r.Dest.URL),
	}

	var stream *ffmpeg.Stream
	if r.Placeholder {
		stream = ffmpeg.Output(placeholderInputs(), r.Dest.URL, outputArgs)
	} else {
		stream = r.Source.liveInput().Output(r.Dest.URL, outputArgs)
	}
	globalArgs := strings.TrimSpace(r.cfg.FFmpegGlobalArgs)
	if globalArgs == "" {
		globalArgs = "-hide_banner -nostdin -loglevel info"
	}
	stream = stream.GlobalArgs(strings.Split(globalArgs, " ")...)
	stream = stream.OverWriteOutput()
	return stream.GetArgs()
}

func (r *Runner) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.cmd != nil {
		return errors.New("runner is already started")
	}

	bin := r.cfg.FFmpegBinary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.Command(bin, r.buildArgs()...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	r.cmd = cmd
	r.started = time.Now()
	r.done = make(chan struct{})
	r.logger.Info(fmt.Sprintf("ffmpeg started for %s -> %s", r.Source, r.Dest.URL))
	go r.drain(stderr)
	return nil
}

func (r *Runner) drain(stderr io.Reader) {
	logDir := r.cfg.FFmpegLogDir
	if logDir == "" {
		logDir = config.CWD()
	}
	out := &lumberjack.Logger{
		Filename:   path.Join(logDir, fmt.Sprintf("ffmpeg-%s-%s.log", r.JobID, r.Dest.Name)),
		MaxSize:    config.Conf().Section("relay").Key("ffmpeg_log_max_size").MustInt(100), // MB
		MaxBackups: config.Conf().Section("relay").Key("ffmpeg_log_max_backups").MustInt(10),
		MaxAge:     config.Conf().Section("relay").Key("ffmpeg_log_max_age").MustInt(30), // days
	}
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Fprintln(out, line)
		r.logger.Debug("ffmpeg: ", line)
	}
	err := r.cmd.Wait()
	out.Close()

	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		r.logger.Warn(fmt.Sprintf("ffmpeg exited with code %d: %v", code, err))
	} else {
		r.logger.Info("ffmpeg finished")
	}

	r.lock.Lock()
	r.exitCode = code
	r.exitErr = err
	r.lock.Unlock()
	close(r.done)
}

// Poll reports the process state without blocking.
func (r *Runner) Poll() RunnerStatus {
	r.lock.Lock()
	done := r.done
	code := r.exitCode
	r.lock.Unlock()
	if done == nil {
		return RunnerExitedWithError
	}
	select {
	case <-done:
		if code == 0 {
			return RunnerExitedNormally
		}
		return RunnerExitedWithError
	default:
		return RunnerRunning
	}
}

func (r *Runner) ExitCode() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.exitCode
}

func (r *Runner) StartedAt() time.Time {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.started
}

// Stop terminates gracefully, waiting up to grace before a hard kill. Safe to
// call repeatedly and on an already-exited process.
func (r *Runner) Stop(grace time.Duration) {
	r.lock.Lock()
	cmd := r.cmd
	done := r.done
	r.lock.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}

	// signal errors are expected when the process raced us to exit
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(grace):
		r.logger.Warn("grace period expired, killing ffmpeg")
		_ = cmd.Process.Kill()
		<-done
	}
}
