package matrix

// SyncResponse is the subset of the /sync payload the ingestor consumes.
type SyncResponse struct {
	NextBatch string    `json:"next_batch"`
	Rooms     SyncRooms `json:"rooms"`
}

// SyncRooms carries per-room timelines for rooms the bot has joined.
type SyncRooms struct {
	Join map[string]SyncJoinedRoom `json:"join"`
}

// SyncJoinedRoom is one joined room's slice of the sync batch.
type SyncJoinedRoom struct {
	Timeline SyncTimeline `json:"timeline"`
}

// SyncTimeline is the ordered event window of one room in one batch.
type SyncTimeline struct {
	Events []Event `json:"events"`
}

// Event is one room event from the sync stream.
type Event struct {
	EventID string         `json:"event_id"`
	Type    string         `json:"type"`
	Sender  string         `json:"sender"`
	Content map[string]any `json:"content"`
}

// Msgtype returns the m.room.message msgtype, or "".
func (e Event) Msgtype() string {
	msgtype, _ := e.Content["msgtype"].(string)
	return msgtype
}

// Body returns the plaintext body, or "".
func (e Event) Body() string {
	body, _ := e.Content["body"].(string)
	return body
}

// FileURL returns the mxc URL of a file message, or "".
func (e Event) FileURL() string {
	fileURL, _ := e.Content["url"].(string)
	return fileURL
}

// FileMimetype returns the declared mimetype of a file message, or "".
func (e Event) FileMimetype() string {
	info, _ := e.Content["info"].(map[string]any)
	mimetype, _ := info["mimetype"].(string)
	return mimetype
}

// InReplyTo returns the event id this message replies to, or "".
func (e Event) InReplyTo() string {
	relates, _ := e.Content["m.relates_to"].(map[string]any)
	inReplyTo, _ := relates["m.in_reply_to"].(map[string]any)
	eventID, _ := inReplyTo["event_id"].(string)
	return eventID
}

// Annotation returns the target event id and key of an m.reaction event.
func (e Event) Annotation() (targetEventID, key string) {
	relates, _ := e.Content["m.relates_to"].(map[string]any)
	if relType, _ := relates["rel_type"].(string); relType != "m.annotation" {
		return "", ""
	}
	targetEventID, _ = relates["event_id"].(string)
	key, _ = relates["key"].(string)
	return targetEventID, key
}
