package sequencing_run_gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NotifyRunProcessed posts a short JSON message to the lab's webhook once
// all of a run's cases have been created.
func NotifyRunProcessed(webhookURL, runID string) error {

	webhookCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	body := fmt.Sprintf(`{"text":"Cases created for sequencing run %s"}`, runID)
	req, err := http.NewRequestWithContext(webhookCtx, http.MethodPost, webhookURL, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return err
	}
	return nil
}
