package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/justapithecus/planalign/types"
)

// heartbeatFrame is the idle frame pushed to subscribers that have seen no
// snapshot within their idle timeout. Idle is not an error.
var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// HeartbeatFrame returns the idle frame bytes.
func HeartbeatFrame() []byte {
	return heartbeatFrame
}

// EncodeFrame renders a snapshot as a push-channel JSON frame. Timestamps
// serialize as ISO-8601 via encoding/json's time handling.
func EncodeFrame(snapshot *types.TelemetrySnapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

// NextFrame waits for the subscription's next snapshot and returns its
// encoded frame. When idleTimeout elapses first, a heartbeat frame is
// returned instead. A closed subscription returns io.EOF; context
// cancellation returns the context error.
func (s *Subscription) NextFrame(ctx context.Context, idleTimeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	select {
	case snapshot, ok := <-s.c:
		if !ok {
			return nil, io.EOF
		}
		return EncodeFrame(snapshot)
	case <-timer.C:
		return heartbeatFrame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
