package signaling

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestMessage_Validate verifies which viewer messages are accepted.
func TestMessage_Validate(t *testing.T) {
	cases := []struct {
		payload string
		ok      bool
	}{
		{`{"t":"offer","sdp":"v=0"}`, true},
		{`{"t":"offer","sdp":"  "}`, false},
		{`{"t":"ice","candidate":{"candidate":"candidate:1 1 UDP 2122252543 192.0.2.3 54400 typ host"}}`, true},
		{`{"t":"ice"}`, true},
		{`{"t":"bye"}`, true},
		{`{"t":"answer","sdp":"v=0"}`, false},
		{`{"t":"zoom"}`, false},
	}
	for _, tc := range cases {
		var msg Message
		if err := json.Unmarshal([]byte(tc.payload), &msg); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.payload, err)
		}
		if err := msg.Validate(); (err == nil) != tc.ok {
			t.Fatalf("%s: expected ok=%v, got %v", tc.payload, tc.ok, err)
		}
	}
}

// TestMessage_RestartCarriesStream verifies the restart payload the viewer
// uses to resize its video element.
func TestMessage_RestartCarriesStream(t *testing.T) {
	msg := Message{T: TypeRestart, Reason: "preset", Stream: &Stream{Track: "preview", Stream: "frameit", Width: 540, Height: 676, FPS: 30}}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"t":"restart","reason":"preset","stream":{"track":"preview","stream":"frameit","w":540,"h":676,"fps":30}}`
	if string(data) != want {
		t.Fatalf("unexpected payload %s", data)
	}
	if strings.Contains(string(data), "sdp") {
		t.Fatalf("expected empty fields omitted")
	}
	if (Stream{}).Known() || !msg.Stream.Known() {
		t.Fatalf("unexpected Known results")
	}
}
