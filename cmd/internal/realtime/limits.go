package realtime

import "time"

// Security/performance limits for the websocket loop.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB
)

const (
	// Heartbeat defaults (overridable by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limit: sustained events per second and burst.
	rateLimitPerSecond = 12
	rateLimitBurst     = 24
)
