package trigger

import (
	"fmt"

	"github.com/webclipper/clipper-api/pkg/httpclient"
	"github.com/webclipper/clipper-api/pkg/logger"
	"go.uber.org/zap"
)

// CallAsync calls a notification trigger URL asynchronously after a successful
// send, appending the created record id (or destination id for webhooks).
// Failures are logged but never affect the send result.
func CallAsync(triggerURL, recordID string, httpClient httpclient.Client) {
	if triggerURL == "" {
		// No trigger URL configured, skip silently
		return
	}

	go func() {
		targetURL := fmt.Sprintf("%s%s", triggerURL, recordID)

		resp, err := httpClient.Get(targetURL)
		if err != nil {
			logger.Error("Failed to call trigger URL",
				zap.Error(err),
				zap.String("url", targetURL),
				zap.String("record_id", recordID))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("Trigger URL called",
				zap.String("record_id", recordID),
				zap.Int("status_code", resp.StatusCode))
		} else {
			logger.Warn("Trigger URL returned non-success status",
				zap.String("url", targetURL),
				zap.Int("status_code", resp.StatusCode))
		}
	}()
}
