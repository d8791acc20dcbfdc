package relay

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Source identifies the live input and a quality selector. Immutable once a
// job starts; changing it requires a restart.
type Source struct {
	URL     string
	Quality string
}

var defaultPorts = map[string]string{
	"rtmp":  "1935",
	"rtmps": "443",
	"rtsp":  "554",
	"srt":   "9710",
	"http":  "80",
	"https": "443",
}

// CheckOnline probes source availability within timeout. HTTP(S) sources get
// a HEAD request, everything else a TCP dial to the scheme's default port.
// A probe failure is not an error condition, just an offline verdict.
func (s Source) CheckOnline(timeout time.Duration) bool {
	u, err := url.Parse(strings.TrimSpace(s.URL))
	if err != nil || u.Hostname() == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" {
		client := &http.Client{Timeout: timeout}
		resp, err := client.Head(s.URL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode < 500
	}
	port := u.Port()
	if port == "" {
		port = defaultPorts[scheme]
		if port == "" {
			return false
		}
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(u.Hostname(), port), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// liveInput builds the ffmpeg input for the real source.
func (s Source) liveInput() *ffmpeg.Stream {
	inputArgs := ffmpeg.KwArgs{"fflags": "+genpts"}
	if strings.HasPrefix(strings.ToLower(s.URL), "rtsp") {
		inputArgs["rtsp_transport"] = "tcp"
	}
	return ffmpeg.Input(s.URL, inputArgs)
}

// placeholderInputs builds a synthetic test pattern plus silent audio, used
// while the live source is offline so destination connections stay up.
func placeholderInputs() []*ffmpeg.Stream {
	video := ffmpeg.Input("testsrc2=size=1280x720:rate=30", ffmpeg.KwArgs{"f": "lavfi", "re": ""})
	audio := ffmpeg.Input("anullsrc=channel_layout=stereo:sample_rate=44100", ffmpeg.KwArgs{"f": "lavfi"})
	return []*ffmpeg.Stream{video, audio}
}

func (s Source) String() string {
	if s.Quality == "" {
		return s.URL
	}
	return fmt.Sprintf("%s (%s)", s.URL, s.Quality)
}
