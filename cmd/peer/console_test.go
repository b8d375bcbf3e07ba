package main

import (
	"testing"

	"github.com/dkeye/VoiceMesh/internal/app/orch"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{"", command{}, false},
		{"  mute ", command{name: "mute"}, false},
		{"Video OFF", command{name: "video", arg: "off"}, false},
		{"video", command{}, true},
		{"share add", command{name: "share", arg: "add"}, false},
		{"dance", command{}, true},
		{"status", command{name: "status"}, false},
		{"deafen Bob", command{name: "deafen", arg: "Bob"}, false},
		{"HIDE carol", command{name: "hide", arg: "carol"}, false},
		{"hear", command{}, true},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.line)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseCommand(%q) err = %v, wantErr %v", tt.line, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseShareMode(t *testing.T) {
	if parseShareMode("ADD") != orch.ShareAdd {
		t.Fatal("add not parsed")
	}
	if parseShareMode("") != orch.ShareReplace {
		t.Fatal("default should be replace")
	}
}
