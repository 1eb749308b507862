package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"go.uber.org/zap"
)

// EventAffiliateChange is the server-sent event type carrying a ChangeEvent.
const EventAffiliateChange = "affiliate-change"

// Watch streams affiliate change events to handler until ctx is cancelled or the server closes the stream.
// Cancellation returns nil; any other end of stream is a transport error.
func (c *Client) Watch(ctx context.Context, handler func(affiliates.ChangeEvent)) error {
	request, err := c.newRequest(ctx, http.MethodGet, pathStream, nil)
	if err != nil {
		return &affiliates.SourceError{Kind: affiliates.ErrorKindTransport, Message: "failed to build request", Err: err}
	}
	request.Header.Set("Accept", "text/event-stream")

	// The default client timeout would cut a long-lived stream.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	response, err := streamClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &affiliates.SourceError{Kind: affiliates.ErrorKindTransport, Message: "stream request failed", Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return classify(response)
	}

	scanner := bufio.NewScanner(response.Body)
	eventType := ""
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventType == EventAffiliateChange && data.Len() > 0 {
				c.dispatch(data.String(), handler)
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment line
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	streamErr := scanner.Err()
	if streamErr == nil {
		streamErr = errors.New("stream closed by server")
	}
	return &affiliates.SourceError{Kind: affiliates.ErrorKindTransport, Message: "affiliate stream ended", Err: streamErr}
}

func (c *Client) dispatch(payload string, handler func(affiliates.ChangeEvent)) {
	var event affiliates.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		c.logger.Warn("discarding malformed affiliate event", zap.Error(err))
		return
	}
	if handler != nil {
		handler(event)
	}
}
