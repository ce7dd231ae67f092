package bus

import (
	"regexp"
	"sort"
	"strings"

	"github.com/carewatch/uwb-core/internal/gateway"
)

// Topic patterns for the channels UWB gateways publish on. Firmware
// generations disagree on suffix spelling, so acks and config channels
// each carry two variants.
var (
	PatternHealth       = regexp.MustCompile(`_Health$`)
	PatternLocation     = regexp.MustCompile(`_Loca$`)
	PatternAck          = regexp.MustCompile(`_Ack$`)
	PatternAckLegacy    = regexp.MustCompile(`ack_from_node$`)
	PatternMessage      = regexp.MustCompile(`_Message$`)
	PatternAnchorConf   = regexp.MustCompile(`_AncConf$`)
	PatternAnchorLegacy = regexp.MustCompile(`anchor_config$`)
	PatternTagConf      = regexp.MustCompile(`_TagConf$`)
	PatternTagLegacy    = regexp.MustCompile(`tag_config$`)
	PatternUWB          = regexp.MustCompile(`^UWB/`)
	PatternAll          = regexp.MustCompile(`.*`)
)

// NamedPattern pairs a stable name with a topic pattern, so callers can
// enumerate the standard channel patterns as data rather than hard-code
// subscriptions.
type NamedPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// StandardPatterns lists the channel patterns in routing order. Health
// and location come first since their consumers are latency sensitive.
var StandardPatterns = []NamedPattern{
	{Name: "health", Pattern: PatternHealth},
	{Name: "location", Pattern: PatternLocation},
	{Name: "ack", Pattern: PatternAck},
	{Name: "ack-legacy", Pattern: PatternAckLegacy},
	{Name: "message", Pattern: PatternMessage},
	{Name: "anchor-config", Pattern: PatternAnchorConf},
	{Name: "anchor-config-legacy", Pattern: PatternAnchorLegacy},
	{Name: "tag-config", Pattern: PatternTagConf},
	{Name: "tag-config-legacy", Pattern: PatternTagLegacy},
	{Name: "uwb", Pattern: PatternUWB},
	{Name: "all", Pattern: PatternAll},
}

// PatternByName returns the standard pattern registered under name.
func PatternByName(name string) (*regexp.Regexp, bool) {
	for _, np := range StandardPatterns {
		if np.Name == name {
			return np.Pattern, true
		}
	}
	return nil, false
}

// ForGateway builds a pattern matching any publish topic of the given
// gateway. Topics are escaped, so broker metacharacters carry no
// regex meaning.
func ForGateway(topics gateway.TopicConfig) *regexp.Regexp {
	values := topics.Values()
	sort.Strings(values)
	quoted := make([]string, 0, len(values))
	for _, t := range values {
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	return regexp.MustCompile("^(?:" + strings.Join(quoted, "|") + ")$")
}
