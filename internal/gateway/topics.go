package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// Channel suffixes for locally derived topics.
// Real devices publish on UWB/GW<suffix>_<Channel>, so these strings
// must match the firmware exactly.
const (
	suffixHealth       = "Health"
	suffixLocation     = "Loca"
	suffixAck          = "Ack"
	suffixMessage      = "Message"
	suffixTagConfig    = "TagConf"
	suffixAnchorConfig = "AncConf"
	suffixDownlink     = "Downlink"
)

// macSuffixLen is the number of trailing MAC characters used as the
// gateway short identifier in derived topic names.
const macSuffixLen = 4

// gwPrefixRe strips an optional "GW:" prefix from a MAC address.
var gwPrefixRe = regexp.MustCompile(`(?i)^GW:`)

// nameTokenRe finds an 8-hex-digit token embedded in a gateway name,
// e.g. "GwF9E516B8_197".
var nameTokenRe = regexp.MustCompile(`(?i)Gw([0-9A-F]{8})_`)

// whitespaceRe matches runs of whitespace for the last-resort fallback.
var whitespaceRe = regexp.MustCompile(`\s+`)

// DeriveTopics computes the topic configuration for a gateway.
//
// It is a pure function of the gateway's identity fields: calling it
// twice with the same value yields identical configs.
//
// When the gateway carries cloud data, the cloud-assigned topics are
// taken verbatim. Otherwise topics are synthesised from the gateway's
// MAC suffix: UWB/GW<suffix>_<Channel> for every channel.
func DeriveTopics(gw *Gateway) TopicConfig {
	if gw.Cloud != nil {
		pub := gw.Cloud.PubTopics
		cfg := TopicConfig{
			Health:       pub.Health,
			Location:     pub.Location,
			Ack:          pub.AckFromNode,
			Message:      pub.Message,
			TagConfig:    pub.TagConfig,
			AnchorConfig: pub.AnchorConfig,
		}
		if gw.Cloud.SubTopics != nil {
			cfg.Downlink = gw.Cloud.SubTopics.Downlink
		}
		return cfg
	}

	suffix := ShortID(gw.MACAddress, gw.Name)
	mk := func(channel string) string {
		return fmt.Sprintf("UWB/GW%s_%s", suffix, channel)
	}

	return TopicConfig{
		Health:       mk(suffixHealth),
		Location:     mk(suffixLocation),
		Ack:          mk(suffixAck),
		Message:      mk(suffixMessage),
		TagConfig:    mk(suffixTagConfig),
		AnchorConfig: mk(suffixAnchorConfig),
		Downlink:     mk(suffixDownlink),
	}
}

// ShortID extracts the 4-character gateway identifier used in derived
// topic names. Extraction is deterministic and case-insensitive:
//
//  1. From the MAC address: strip an optional "GW:" prefix and take the
//     last 4 characters, uppercased. "GW:F9E516B8" yields "16B8".
//  2. From the name: take the last 4 digits of an 8-hex-digit token
//     matching Gw<hex8>_. "GwF9E516B8_197" also yields "16B8".
//  3. Last resort: the name with whitespace stripped. Collisions between
//     non-conforming names are guarded at registration time (see
//     Registry.Register).
func ShortID(macAddress, name string) string {
	if macAddress != "" {
		mac := gwPrefixRe.ReplaceAllString(macAddress, "")
		if len(mac) >= macSuffixLen {
			return strings.ToUpper(mac[len(mac)-macSuffixLen:])
		}
	}

	if m := nameTokenRe.FindStringSubmatch(name); m != nil {
		token := m[1]
		return strings.ToUpper(token[len(token)-macSuffixLen:])
	}

	if name != "" {
		return whitespaceRe.ReplaceAllString(name, "")
	}
	return "Unknown"
}
