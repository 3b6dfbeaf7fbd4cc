package commands

import (
	"maps"
	"testing"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

func TestParseProps(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"pairs", []string{"a=1", "b=two"}, map[string]string{"a": "1", "b": "two"}, false},
		{"value with equals", []string{"q=x=y"}, map[string]string{"q": "x=y"}, false},
		{"empty value", []string{"flag="}, map[string]string{"flag": ""}, false},
		{"key trimmed", []string{" k =v"}, map[string]string{"k": "v"}, false},
		{"missing equals", []string{"novalue"}, nil, true},
		{"empty key", []string{"=v"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProps(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !maps.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendDestination(t *testing.T) {
	tests := []struct {
		name         string
		queue, topic string
		want         message.Destination
		wantErr      bool
	}{
		{"queue", "orders", "", message.Destination{Name: "orders", Kind: message.Queue}, false},
		{"topic", "", "audit", message.Destination{Name: "audit", Kind: message.Topic}, false},
		{"both", "orders", "audit", message.Destination{}, true},
		{"neither", "", "", message.Destination{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sendDestination(tt.queue, tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
