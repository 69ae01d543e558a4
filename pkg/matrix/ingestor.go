package matrix

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/medops-br/triagebot/pkg/config"
)

// EventSink receives the routed chat events. Handlers must not panic; a
// returned error is logged and the event is dropped (intake and reply
// flows are idempotent, and humans can resend a reply).
type EventSink interface {
	// OnRoom1File handles a PDF upload in the intake room.
	OnRoom1File(ctx context.Context, roomID, eventID, sender, body, mxcURL string) error

	// OnRoom2Reply handles a doctor's threaded text reply in Room-2.
	OnRoom2Reply(ctx context.Context, roomID, eventID, sender, body, inReplyTo string) error

	// OnRoom3Reply handles a scheduler's threaded text reply in Room-3.
	OnRoom3Reply(ctx context.Context, roomID, eventID, sender, body, inReplyTo string) error

	// OnRoom1Reaction handles a reaction in Room-1 (cleanup trigger).
	OnRoom1Reaction(ctx context.Context, roomID, eventID, sender, key, targetEventID string) error
}

// thumbsKeys are the reaction keys that trigger cleanup.
var thumbsKeys = map[string]bool{"+1": true, "👍": true, "👍️": true}

// Ingestor long-polls /sync and routes room events to the sink. The very
// first batch only captures the since token, so history from before
// startup is never re-processed.
type Ingestor struct {
	client   *Client
	sink     EventSink
	rooms    config.RoomsConfig
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewIngestor creates the sync ingestor.
func NewIngestor(client *Client, sink EventSink, rooms config.RoomsConfig, matrixCfg config.MatrixConfig) *Ingestor {
	if client == nil || sink == nil {
		panic("NewIngestor: client and sink must not be nil")
	}
	return &Ingestor{
		client:   client,
		sink:     sink,
		rooms:    rooms,
		timeout:  matrixCfg.SyncTimeout,
		interval: matrixCfg.PollInterval,
		logger:   slog.With("component", "ingestor"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sync loop in a goroutine.
func (i *Ingestor) Start(ctx context.Context) {
	i.wg.Add(1)
	go i.run(ctx)
}

// Stop signals the loop to exit and waits for it. Safe to call twice.
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() { close(i.stopCh) })
	i.wg.Wait()
}

func (i *Ingestor) run(ctx context.Context) {
	defer i.wg.Done()
	i.logger.Info("Ingestor started")

	since := ""
	for {
		select {
		case <-i.stopCh:
			i.logger.Info("Ingestor shutting down")
			return
		case <-ctx.Done():
			return
		default:
		}

		response, err := i.client.Sync(ctx, since, i.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			i.logger.Error("Sync failed", "error", err)
			i.sleep(i.interval * 5)
			continue
		}

		// The initial sync carries pre-startup history; only its
		// next_batch token is used.
		if since != "" {
			i.routeBatch(ctx, response)
		}
		since = response.NextBatch
		i.sleep(i.interval)
	}
}

func (i *Ingestor) sleep(d time.Duration) {
	select {
	case <-i.stopCh:
	case <-time.After(d):
	}
}

func (i *Ingestor) routeBatch(ctx context.Context, response *SyncResponse) {
	for roomID, room := range response.Rooms.Join {
		for _, event := range room.Timeline.Events {
			i.routeEvent(ctx, roomID, event)
		}
	}
}

// routeEvent dispatches one event by room and type. The bot's own events
// and unrelated rooms are ignored.
func (i *Ingestor) routeEvent(ctx context.Context, roomID string, event Event) {
	if event.Sender == i.client.BotUserID() {
		return
	}

	var err error
	switch {
	case roomID == i.rooms.Room1ID && event.Type == "m.room.message" && isPdfUpload(event):
		err = i.sink.OnRoom1File(ctx, roomID, event.EventID, event.Sender, event.Body(), event.FileURL())

	case roomID == i.rooms.Room1ID && event.Type == "m.reaction":
		targetEventID, key := event.Annotation()
		if targetEventID == "" || !thumbsKeys[key] {
			return
		}
		err = i.sink.OnRoom1Reaction(ctx, roomID, event.EventID, event.Sender, key, targetEventID)

	case roomID == i.rooms.Room2ID && isTextReply(event):
		err = i.sink.OnRoom2Reply(ctx, roomID, event.EventID, event.Sender, event.Body(), event.InReplyTo())

	case roomID == i.rooms.Room3ID && isTextReply(event):
		err = i.sink.OnRoom3Reply(ctx, roomID, event.EventID, event.Sender, event.Body(), event.InReplyTo())

	default:
		return
	}

	if err != nil {
		i.logger.Error("Event handling failed",
			"room_id", roomID, "event_id", event.EventID, "type", event.Type, "error", err)
	}
}

func isPdfUpload(event Event) bool {
	if event.Msgtype() != "m.file" || event.FileURL() == "" {
		return false
	}
	if event.FileMimetype() == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(event.Body()), ".pdf")
}

func isTextReply(event Event) bool {
	return event.Type == "m.room.message" && event.Msgtype() == "m.text" && event.InReplyTo() != ""
}
