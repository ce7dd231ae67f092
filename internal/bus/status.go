package bus

// Status describes the bus connection lifecycle.
//
// Transitions:
//
//	disconnected -> connecting -> connected
//	connected -> reconnecting -> connected (broker drop, auto-recover)
//	connecting -> error (initial attempt failed, retry continues)
//	any -> disconnected (explicit Disconnect)
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// StatusListener receives connection status changes. Listeners are
// invoked synchronously on the goroutine that triggered the change and
// must not block.
type StatusListener func(status Status)

// Stats summarises bus activity since construction.
type Stats struct {
	Status                Status   `json:"status"`
	TotalMessages         uint64   `json:"total_messages"`
	LastMessageTime       string   `json:"last_message_time,omitempty"`
	ConnectionAttempts    int      `json:"connection_attempts"`
	SuccessfulConnections int      `json:"successful_connections"`
	ActiveTopics          []string `json:"active_topics"`
	BufferedMessages      int      `json:"buffered_messages"`
	Routes                int      `json:"routes"`
}
