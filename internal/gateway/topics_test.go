package gateway

import "testing"

func TestShortID(t *testing.T) {
	tests := []struct {
		name string
		mac  string
		gwn  string
		want string
	}{
		{"mac with GW prefix", "GW:F9E516B8", "", "16B8"},
		{"mac lowercase prefix", "gw:f9e516b8", "", "16B8"},
		{"plain mac", "F9E516B8", "", "16B8"},
		{"short mac falls back to name", "A1", "GwF9E516B8_197", "16B8"},
		{"name token", "", "GwF9E516B8_197", "16B8"},
		{"name token lowercase", "", "gwf9e516b8_3", "16B8"},
		{"non-conforming name", "", "Ward 3 East", "Ward3East"},
		{"empty everything", "", "", "Unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShortID(tc.mac, tc.gwn); got != tc.want {
				t.Errorf("ShortID(%q, %q) = %q, want %q", tc.mac, tc.gwn, got, tc.want)
			}
		})
	}
}

func TestDeriveTopicsLocal(t *testing.T) {
	gw := &Gateway{ID: "gw1", Name: "GwF9E516B8_197"}

	topics := DeriveTopics(gw)

	want := TopicConfig{
		Health:       "UWB/GW16B8_Health",
		Location:     "UWB/GW16B8_Loca",
		Ack:          "UWB/GW16B8_Ack",
		Message:      "UWB/GW16B8_Message",
		TagConfig:    "UWB/GW16B8_TagConf",
		AnchorConfig: "UWB/GW16B8_AncConf",
		Downlink:     "UWB/GW16B8_Downlink",
	}
	if topics != want {
		t.Errorf("DeriveTopics() = %+v, want %+v", topics, want)
	}
}

func TestDeriveTopicsCloud(t *testing.T) {
	gw := &Gateway{
		ID:         "gw2",
		MACAddress: "GW:F9E516B8",
		Cloud: &CloudData{
			PubTopics: CloudPubTopics{
				Health:       "site/1/health",
				Location:     "site/1/location",
				AckFromNode:  "site/1/ack_from_node",
				Message:      "site/1/message",
				TagConfig:    "site/1/tag_config",
				AnchorConfig: "site/1/anchor_config",
			},
			SubTopics: &CloudSubTopic{Downlink: "site/1/downlink"},
		},
	}

	topics := DeriveTopics(gw)

	if topics.Health != "site/1/health" {
		t.Errorf("Health = %q, want cloud-assigned topic", topics.Health)
	}
	if topics.Ack != "site/1/ack_from_node" {
		t.Errorf("Ack = %q, want ack_from_node mapping", topics.Ack)
	}
	if topics.Downlink != "site/1/downlink" {
		t.Errorf("Downlink = %q, want sub_topic downlink", topics.Downlink)
	}
}

// Derivation must be a pure function of gateway identity.
func TestDeriveTopicsDeterministic(t *testing.T) {
	gw := &Gateway{ID: "gw1", MACAddress: "GW:F9E516B8", Name: "spare name"}

	first := DeriveTopics(gw)
	second := DeriveTopics(gw)

	if first != second {
		t.Errorf("DeriveTopics() not deterministic: %+v vs %+v", first, second)
	}
}

func TestTopicConfigValues(t *testing.T) {
	tc := TopicConfig{Health: "t/h", Ack: "t/a"}

	vals := tc.Values()
	if len(vals) != 2 {
		t.Fatalf("Values() returned %d topics, want 2", len(vals))
	}
	if vals[0] != "t/h" || vals[1] != "t/a" {
		t.Errorf("Values() = %v, want [t/h t/a]", vals)
	}
	if !tc.Contains("t/a") {
		t.Error("Contains(t/a) = false, want true")
	}
	if tc.Contains("t/x") {
		t.Error("Contains(t/x) = true, want false")
	}
}

func TestTopicConfigDiff(t *testing.T) {
	older := TopicConfig{Health: "t1", Location: "t2"}
	newer := TopicConfig{Health: "t1", Location: "t3", Ack: "t4"}

	added, removed := older.Diff(newer)

	if len(added) != 2 || added[0] != "t3" || added[1] != "t4" {
		t.Errorf("added = %v, want [t3 t4]", added)
	}
	if len(removed) != 1 || removed[0] != "t2" {
		t.Errorf("removed = %v, want [t2]", removed)
	}
}
