package gateway

import "time"

// Status represents the operational state of a gateway as reported by
// the upstream sync layer.
type Status string

// Gateway statuses.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Gateway is a physical IoT bridge relaying wearable and UWB tag
// telemetry to the MQTT broker. Gateways are created externally (REST
// sync or discovery) and registered into the Registry; the Registry only
// ever stores copies.
type Gateway struct {
	ID         string     `json:"id"`
	FloorID    string     `json:"floorId,omitempty"`
	Name       string     `json:"name"`
	MACAddress string     `json:"macAddress,omitempty"`
	IPAddress  string     `json:"ipAddress,omitempty"`
	Status     Status     `json:"status"`
	LastSeen   *time.Time `json:"lastSeen,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`

	// Cloud holds the broker-side configuration reported by the gateway
	// itself. When present, its topic assignments take precedence over
	// locally derived topics.
	Cloud *CloudData `json:"cloudData,omitempty"`
}

// Copy returns a deep copy of the gateway.
// The Registry stores and returns copies so callers can never mutate
// registry state through a shared pointer.
func (g *Gateway) Copy() *Gateway {
	out := *g
	if g.LastSeen != nil {
		ls := *g.LastSeen
		out.LastSeen = &ls
	}
	if g.Cloud != nil {
		cd := *g.Cloud
		if g.Cloud.SubTopics != nil {
			st := *g.Cloud.SubTopics
			cd.SubTopics = &st
		}
		out.Cloud = &cd
	}
	return &out
}

// CloudData is the self-reported configuration a gateway publishes to
// the cloud backend. Only the fields the bus subsystem consumes are
// modelled; the rest of the report stays with the sync layer.
type CloudData struct {
	GatewayID       int            `json:"gateway_id"`
	Name            string         `json:"name"`
	FirmwareVersion string         `json:"fw_ver,omitempty"`
	PubTopics       CloudPubTopics `json:"pub_topic"`
	SubTopics       *CloudSubTopic `json:"sub_topic,omitempty"`
}

// CloudPubTopics are the broker topics the gateway publishes on.
type CloudPubTopics struct {
	AnchorConfig string `json:"anchor_config"`
	TagConfig    string `json:"tag_config"`
	Location     string `json:"location"`
	Message      string `json:"message"`
	AckFromNode  string `json:"ack_from_node"`
	Health       string `json:"health"`
}

// CloudSubTopic are the broker topics the gateway listens on.
type CloudSubTopic struct {
	Downlink string `json:"downlink"`
}

// TopicConfig is the fixed set of named channels a gateway uses.
// It is a pure function of the gateway's identity (see DeriveTopics):
// recomputed on every add or update, never mutated incrementally.
type TopicConfig struct {
	Health       string `json:"health,omitempty"`
	Location     string `json:"location,omitempty"`
	Ack          string `json:"ack,omitempty"`
	Message      string `json:"message,omitempty"`
	TagConfig    string `json:"tagConfig,omitempty"`
	AnchorConfig string `json:"anchorConfig,omitempty"`
	Downlink     string `json:"downlink,omitempty"`
}

// Values returns the non-empty topic strings in stable channel order.
func (tc TopicConfig) Values() []string {
	candidates := []string{
		tc.Health,
		tc.Location,
		tc.Ack,
		tc.Message,
		tc.TagConfig,
		tc.AnchorConfig,
		tc.Downlink,
	}

	out := make([]string, 0, len(candidates))
	for _, t := range candidates {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Contains reports whether the config uses the exact topic string.
func (tc TopicConfig) Contains(topic string) bool {
	for _, t := range tc.Values() {
		if t == topic {
			return true
		}
	}
	return false
}

// Diff computes the topic-set difference between two configs.
// Returned slices preserve channel order of the respective config.
func (tc TopicConfig) Diff(newer TopicConfig) (added, removed []string) {
	oldSet := make(map[string]struct{})
	for _, t := range tc.Values() {
		oldSet[t] = struct{}{}
	}
	newSet := make(map[string]struct{})
	for _, t := range newer.Values() {
		newSet[t] = struct{}{}
	}

	for _, t := range newer.Values() {
		if _, ok := oldSet[t]; !ok {
			added = append(added, t)
		}
	}
	for _, t := range tc.Values() {
		if _, ok := newSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}
