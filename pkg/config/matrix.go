package config

import "time"

// MatrixConfig holds the homeserver connection used by the bot.
type MatrixConfig struct {
	// HomeserverURL is the base client-server API URL, e.g.
	// "https://matrix.example.org".
	HomeserverURL string

	// BotUserID is the bot's full Matrix user id, e.g.
	// "@triagebot:example.org". Events from this sender are ignored.
	BotUserID string

	// AccessToken authenticates every client-server API call.
	AccessToken string

	// SyncTimeout is the long-poll timeout passed to /sync.
	SyncTimeout time.Duration

	// PollInterval is the delay between consecutive sync batches.
	PollInterval time.Duration
}

// RoomsConfig names the four fixed rooms of the triage flow.
type RoomsConfig struct {
	Room1ID string // intake room: PDF uploads, final replies, cleanup reactions
	Room2ID string // doctor room: triage widget and decision replies
	Room3ID string // scheduler room: appointment requests and replies
	Room4ID string // supervisor room: twice-daily summaries
}

func loadMatrixConfig() (MatrixConfig, error) {
	homeserverURL, err := requireEnv("MATRIX_HOMESERVER_URL")
	if err != nil {
		return MatrixConfig{}, err
	}
	botUserID, err := requireEnv("MATRIX_BOT_USER_ID")
	if err != nil {
		return MatrixConfig{}, err
	}
	accessToken, err := requireEnv("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return MatrixConfig{}, err
	}

	syncTimeoutMs, err := positiveIntEnvOrDefault("MATRIX_SYNC_TIMEOUT_MS", 30000)
	if err != nil {
		return MatrixConfig{}, err
	}
	pollInterval, err := secondsEnvOrDefault("MATRIX_POLL_INTERVAL_SECONDS", 1*time.Second)
	if err != nil {
		return MatrixConfig{}, err
	}

	return MatrixConfig{
		HomeserverURL: homeserverURL,
		BotUserID:     botUserID,
		AccessToken:   accessToken,
		SyncTimeout:   time.Duration(syncTimeoutMs) * time.Millisecond,
		PollInterval:  pollInterval,
	}, nil
}

func loadRoomsConfig() (RoomsConfig, error) {
	room1, err := requireEnv("ROOM1_ID")
	if err != nil {
		return RoomsConfig{}, err
	}
	room2, err := requireEnv("ROOM2_ID")
	if err != nil {
		return RoomsConfig{}, err
	}
	room3, err := requireEnv("ROOM3_ID")
	if err != nil {
		return RoomsConfig{}, err
	}
	room4, err := requireEnv("ROOM4_ID")
	if err != nil {
		return RoomsConfig{}, err
	}
	return RoomsConfig{Room1ID: room1, Room2ID: room2, Room3ID: room3, Room4ID: room4}, nil
}
