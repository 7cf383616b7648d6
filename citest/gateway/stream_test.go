package gateway_test

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voicedesk-ai/voicedesk/citest/testutil"
	"github.com/voicedesk-ai/voicedesk/internal/gateway"
)

type sseFrame struct {
	ID   string
	Data string
}

// openStream subscribes to a session's event stream and returns a channel
// of parsed frames plus a close function.
func openStream(sid, lastEventID string) (<-chan sseFrame, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, "GET", stack.BaseURL+"/rpc", nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+testutil.SharedSecret)
	req.Header.Set(gateway.HeaderSessionID, sid)
	if lastEventID != "" {
		req.Header.Set(gateway.HeaderLastEventID, lastEventID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	frames := make(chan sseFrame, 16)
	go func() {
		defer close(frames)
		defer resp.Body.Close()

		var frame sseFrame
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if frame.Data != "" {
					frames <- frame
				}
				frame = sseFrame{}
			case strings.HasPrefix(line, "id: "):
				frame.ID = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				frame.Data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	return frames, cancel, nil
}

var _ = Describe("Event streaming", func() {
	var sid string

	BeforeEach(func() {
		var err error
		sid, err = stack.Initialize()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		resp, err := stack.Terminate(sid)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
	})

	It("delivers tool-triggered events live", func() {
		frames, closeStream, err := openStream(sid, "")
		Expect(err).NotTo(HaveOccurred())
		defer closeStream()

		_, err = stack.CallTool(sid, "create_ticket", map[string]any{
			"company_id":  testutil.TenantCompanyID,
			"title":       "Monitor flickers",
			"description": "Caller reports a flickering monitor",
		})
		Expect(err).NotTo(HaveOccurred())

		var frame sseFrame
		Eventually(frames, 5*time.Second).Should(Receive(&frame))
		Expect(frame.Data).To(ContainSubstring("ticket.created"))
		Expect(frame.ID).To(HavePrefix(sid + "_"))
	})

	It("replays missed events on resume", func() {
		// Two tool calls while nothing is subscribed: both events land in
		// the session's stream history behind the session.created entry.
		for _, title := range []string{"first", "second"} {
			_, err := stack.CallTool(sid, "create_ticket", map[string]any{
				"company_id":  testutil.TenantCompanyID,
				"title":       title,
				"description": "d",
			})
			Expect(err).NotTo(HaveOccurred())
		}
		Eventually(func() int {
			return len(stack.Log.Events(sid))
		}, 5*time.Second).Should(Equal(3))

		events := stack.Log.Events(sid)
		Expect(string(events[0].Payload)).To(ContainSubstring("session.created"))

		// Resuming from the first ticket event yields exactly the second.
		frames, closeStream, err := openStream(sid, events[1].ID)
		Expect(err).NotTo(HaveOccurred())
		defer closeStream()

		var frame sseFrame
		Eventually(frames, 5*time.Second).Should(Receive(&frame))
		Expect(frame.ID).To(Equal(events[2].ID))
		Consistently(frames, 200*time.Millisecond).ShouldNot(Receive())
	})

	It("ends the stream when the session is terminated", func() {
		frames, closeStream, err := openStream(sid, "")
		Expect(err).NotTo(HaveOccurred())
		defer closeStream()

		resp, err := stack.Terminate(sid)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Eventually(frames, 5*time.Second).Should(BeClosed())
	})
})
