package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"
)

var (
	ordersPlaced  = metrics.NewCounter(`checkout_orders_placed_total`)
	replyDuration = metrics.NewHistogram(`checkout_reply_duration_seconds`)
)

// Setup starts pushing metrics when a push URL is configured.
func Setup(pushURL string, interval time.Duration, labels string, logger *zap.Logger) {
	if pushURL == "" {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if err := metrics.InitPush(pushURL, interval, labels, true); err != nil {
		logger.Error("Metrics push init failed", zap.String("url", pushURL), zap.Error(err))
		return
	}
	logger.Info("Pushing metrics", zap.String("url", pushURL), zap.Duration("interval", interval))
}

// SignResult counts an authorization signing attempt by result.
func SignResult(result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`checkout_sign_total{result=%q}`, result)).Inc()
}

// ReplyResult counts a processed gateway reply by terminal state.
func ReplyResult(state string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`checkout_reply_total{result=%q}`, state)).Inc()
}

func ObserveReply(start time.Time) {
	replyDuration.UpdateDuration(start)
}

func OrderPlaced() {
	ordersPlaced.Inc()
}

// WritePrometheus writes all registered metrics in Prometheus text format.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
