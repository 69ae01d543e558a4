package matrix

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/medops-br/triagebot/pkg/config"
)

type sinkCall struct {
	kind    string
	roomID  string
	eventID string
	sender  string
	detail  string
}

type recordingSink struct {
	calls []sinkCall
}

func (s *recordingSink) OnRoom1File(_ context.Context, roomID, eventID, sender, _, mxcURL string) error {
	s.calls = append(s.calls, sinkCall{"room1_file", roomID, eventID, sender, mxcURL})
	return nil
}

func (s *recordingSink) OnRoom2Reply(_ context.Context, roomID, eventID, sender, _, inReplyTo string) error {
	s.calls = append(s.calls, sinkCall{"room2_reply", roomID, eventID, sender, inReplyTo})
	return nil
}

func (s *recordingSink) OnRoom3Reply(_ context.Context, roomID, eventID, sender, _, inReplyTo string) error {
	s.calls = append(s.calls, sinkCall{"room3_reply", roomID, eventID, sender, inReplyTo})
	return nil
}

func (s *recordingSink) OnRoom1Reaction(_ context.Context, roomID, eventID, sender, key, _ string) error {
	s.calls = append(s.calls, sinkCall{"room1_reaction", roomID, eventID, sender, key})
	return nil
}

var testRooms = config.RoomsConfig{
	Room1ID: "!r1:example.org",
	Room2ID: "!r2:example.org",
	Room3ID: "!r3:example.org",
	Room4ID: "!r4:example.org",
}

func newTestIngestor(sink EventSink) *Ingestor {
	client := NewClient(config.MatrixConfig{
		HomeserverURL: "http://localhost:0",
		BotUserID:     "@triagebot:example.org",
		AccessToken:   "token",
		SyncTimeout:   time.Second,
		PollInterval:  time.Second,
	})
	return NewIngestor(client, sink, testRooms, config.MatrixConfig{
		SyncTimeout:  time.Second,
		PollInterval: time.Second,
	})
}

func TestRouteEventPdfUpload(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), testRooms.Room1ID, Event{
		EventID: "$pdf1",
		Type:    "m.room.message",
		Sender:  "@requester:example.org",
		Content: map[string]any{
			"msgtype": "m.file",
			"body":    "laudo.pdf",
			"url":     "mxc://example.org/abc",
			"info":    map[string]any{"mimetype": "application/pdf"},
		},
	})

	assert.Equal(t, []sinkCall{{"room1_file", testRooms.Room1ID, "$pdf1", "@requester:example.org", "mxc://example.org/abc"}}, sink.calls)
}

func TestRouteEventPdfByExtensionOnly(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), testRooms.Room1ID, Event{
		EventID: "$pdf2",
		Type:    "m.room.message",
		Sender:  "@requester:example.org",
		Content: map[string]any{
			"msgtype": "m.file",
			"body":    "LAUDO.PDF",
			"url":     "mxc://example.org/def",
		},
	})

	assert.Len(t, sink.calls, 1)
	assert.Equal(t, "room1_file", sink.calls[0].kind)
}

func TestRouteEventIgnoresNonPdfFiles(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), testRooms.Room1ID, Event{
		EventID: "$img",
		Type:    "m.room.message",
		Sender:  "@requester:example.org",
		Content: map[string]any{
			"msgtype": "m.image",
			"body":    "foto.png",
			"url":     "mxc://example.org/img",
		},
	})

	assert.Empty(t, sink.calls)
}

func TestRouteEventIgnoresBotSender(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), testRooms.Room2ID, Event{
		EventID: "$own",
		Type:    "m.room.message",
		Sender:  "@triagebot:example.org",
		Content: map[string]any{"msgtype": "m.text", "body": "ack"},
	})

	assert.Empty(t, sink.calls)
}

func TestRouteEventRoom2Reply(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), testRooms.Room2ID, Event{
		EventID: "$reply",
		Type:    "m.room.message",
		Sender:  "@doctor:example.org",
		Content: map[string]any{
			"msgtype": "m.text",
			"body":    "decisao: aceitar",
			"m.relates_to": map[string]any{
				"m.in_reply_to": map[string]any{"event_id": "$widget"},
			},
		},
	})

	assert.Equal(t, []sinkCall{{"room2_reply", testRooms.Room2ID, "$reply", "@doctor:example.org", "$widget"}}, sink.calls)
}

func TestRouteEventRoom2NonReplyTextIgnored(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), testRooms.Room2ID, Event{
		EventID: "$chat",
		Type:    "m.room.message",
		Sender:  "@doctor:example.org",
		Content: map[string]any{"msgtype": "m.text", "body": "bom dia"},
	})

	assert.Empty(t, sink.calls)
}

func TestRouteEventThumbsReaction(t *testing.T) {
	for _, key := range []string{"+1", "👍"} {
		sink := &recordingSink{}
		ingestor := newTestIngestor(sink)

		ingestor.routeEvent(context.Background(), testRooms.Room1ID, Event{
			EventID: "$react",
			Type:    "m.reaction",
			Sender:  "@requester:example.org",
			Content: map[string]any{
				"m.relates_to": map[string]any{
					"rel_type": "m.annotation",
					"event_id": "$final",
					"key":      key,
				},
			},
		})

		assert.Len(t, sink.calls, 1, "key %q", key)
		assert.Equal(t, "room1_reaction", sink.calls[0].kind)
	}
}

func TestRouteEventOtherReactionKeyIgnored(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), testRooms.Room1ID, Event{
		EventID: "$react",
		Type:    "m.reaction",
		Sender:  "@requester:example.org",
		Content: map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": "m.annotation",
				"event_id": "$final",
				"key":      "🎉",
			},
		},
	})

	assert.Empty(t, sink.calls)
}

func TestRouteEventUnknownRoomIgnored(t *testing.T) {
	sink := &recordingSink{}
	ingestor := newTestIngestor(sink)

	ingestor.routeEvent(context.Background(), "!elsewhere:example.org", Event{
		EventID: "$x",
		Type:    "m.room.message",
		Sender:  "@someone:example.org",
		Content: map[string]any{"msgtype": "m.text", "body": "hi"},
	})

	assert.Empty(t, sink.calls)
}
