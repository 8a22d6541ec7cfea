package config

import "time"

const (
	// WebSocket
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxFrameSize    = 4096
	ReadBufferSize  = 1024
	WriteBufferSize = 1024

	// HTTP
	ReadHeaderTimeout = 10 * time.Second
	MaxHeaderBytes    = 1 << 20

	// Storage
	DBPingTimeout    = 5 * time.Second
	StorageOpTimeout = 3 * time.Second
	StatsKey         = "chat:stats"
	StatsChannel     = "chat:stats"
)
