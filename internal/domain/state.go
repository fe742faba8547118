package domain

import "time"

// ConnectionStatus of the market-data stream.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionConnecting   ConnectionStatus = "CONNECTING"
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionError        ConnectionStatus = "ERROR"
)

// ServiceState is the externally visible status of the monitoring loop.
// Single writer (the loop), many readers.
type ServiceState struct {
	IsRunning         bool             `json:"isRunning"`
	ConnectionStatus  ConnectionStatus `json:"connectionStatus"`
	LastCheckTime     time.Time        `json:"lastCheckTime,omitzero"`
	LastRebalanceTime time.Time        `json:"lastRebalanceTime,omitzero"`
	ErrorMessage      string           `json:"errorMessage,omitempty"`
}
