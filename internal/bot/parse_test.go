package bot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseChannelArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    ChannelArgs
		wantErr bool
	}{
		{
			name: "id and title",
			args: "-1001234 Tech News",
			want: ChannelArgs{ChannelID: -1001234, Title: "Tech News"},
		},
		{
			name: "id username and title",
			args: "-1001234 @technews Tech News Daily",
			want: ChannelArgs{ChannelID: -1001234, Username: "technews", Title: "Tech News Daily"},
		},
		{
			name:    "missing title",
			args:    "-1001234",
			wantErr: true,
		},
		{
			name:    "username without title",
			args:    "-1001234 @technews",
			wantErr: true,
		},
		{
			name:    "non-numeric id",
			args:    "abc Tech News",
			wantErr: true,
		},
		{
			name:    "empty",
			args:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannelArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseChannelArgs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFilterCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    FilterArgs
		wantErr bool
	}{
		{
			name: "single word",
			args: "spam",
			want: FilterArgs{Value: "spam"},
		},
		{
			name: "multi word value",
			args: "limited time offer",
			want: FilterArgs{Value: "limited time offer"},
		},
		{
			name: "case sensitive flag",
			args: "-c GoLang",
			want: FilterArgs{Value: "GoLang", CaseSensitive: true},
		},
		{
			name:    "flag without value",
			args:    "-c",
			wantErr: true,
		},
		{
			name:    "empty",
			args:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilterCommand(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFilterCommand mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIDArg(t *testing.T) {
	if _, err := ParseIDArg(""); err == nil {
		t.Error("expected an error for empty args")
	}
	if _, err := ParseIDArg("abc"); err == nil {
		t.Error("expected an error for non-numeric args")
	}
	id, err := ParseIDArg("  -100  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != -100 {
		t.Errorf("id = %d, want -100", id)
	}
}
