package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/classbill/classbill/internal/orgcontext"
	"github.com/classbill/classbill/internal/usage/liveevents"
	"github.com/gin-gonic/gin"
)

var errStreamingUnsupported = fmt.Errorf("%w: streaming unsupported", ErrInternal)

// StreamUsageEvents pushes usage change and limit events for one
// organization over SSE.
func (s *Server) StreamUsageEvents(c *gin.Context) {
	if s.liveUsageEvents == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())

	subscription := s.liveUsageEvents.Subscribe(orgID.String())
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, errStreamingUnsupported)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeUsageEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeUsageEvent(w io.Writer, event liveevents.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	return err
}
