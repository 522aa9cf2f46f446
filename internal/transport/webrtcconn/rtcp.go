package webrtcconn

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/meridian-rdp/core/internal/logging"
)

var log = logging.L("webrtcconn")

// DrainRTCP reads RTCP feedback off sender and invokes onKeyframeRequest
// whenever a PictureLossIndication or FullIntraRequest arrives, rate
// limited to once per 500ms. It returns once sender.Read starts failing
// (peer connection torn down).
func DrainRTCP(sender *webrtc.RTPSender, onKeyframeRequest func()) {
	buf := make([]byte, 1500)
	var lastKF time.Time
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, p := range pkts {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if time.Since(lastKF) < 500*time.Millisecond {
					continue
				}
				lastKF = time.Now()
				log.Debug("keyframe requested via RTCP")
				onKeyframeRequest()
			}
		}
	}
}
