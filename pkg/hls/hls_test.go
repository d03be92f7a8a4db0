package hls

import (
	"reflect"
	"strings"
	"testing"
)

func TestDefaultOptionsArgs(t *testing.T) {
	args := DefaultOptions().BuildArgs()

	expected := []string{
		"-i", "input.mp4",
		"-hls_time", "10",
		"-hls_list_size", "0",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-f", "hls",
		"-threads", "4",
		"output.m3u8",
	}
	if !reflect.DeepEqual(args, expected) {
		t.Errorf("BuildArgs() mismatch:\nGot:  %v\nWant: %v", args, expected)
	}
}

func TestZeroOptionsUseDefaults(t *testing.T) {
	if !reflect.DeepEqual(Options{}.BuildArgs(), DefaultOptions().BuildArgs()) {
		t.Errorf("zero Options should build the default argv")
	}
}

func TestBuildArgsCustom(t *testing.T) {
	opts := Options{
		SegmentDuration: 6,
		ListSize:        5,
		Preset:          "veryfast",
		Threads:         2,
		ExtraParams:     []string{"-hls_flags", "independent_segments"},
	}
	args := opts.BuildArgs()
	argsMap := argsToMap(args)

	if argsMap["-hls_time"] != "6" {
		t.Errorf("Incorrect -hls_time: got %q", argsMap["-hls_time"])
	}
	if argsMap["-hls_list_size"] != "5" {
		t.Errorf("Incorrect -hls_list_size: got %q", argsMap["-hls_list_size"])
	}
	if argsMap["-preset"] != "veryfast" {
		t.Errorf("Incorrect -preset: got %q", argsMap["-preset"])
	}
	if argsMap["-threads"] != "2" {
		t.Errorf("Incorrect -threads: got %q", argsMap["-threads"])
	}
	if !contains(args, "-hls_flags", "independent_segments") {
		t.Errorf("Missing extra params in args: %v", args)
	}
	if !endsWith(args, "output.m3u8") {
		t.Errorf("Args should end with the playlist name, got: %v", args)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"zero value", Options{}, false},
		{"negative duration", Options{SegmentDuration: -1}, true},
		{"negative list size", Options{ListSize: -1}, true},
		{"negative threads", Options{Threads: -2}, true},
		{"playlist with path", Options{PlaylistName: "dir/out.m3u8"}, true},
		{"playlist without stem", Options{PlaylistName: ".m3u8"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// argsToMap converts args to flag/value pairs. Assumes flags come before their values.
func argsToMap(args []string) map[string]string {
	m := make(map[string]string)
	for i := 0; i < len(args)-1; i++ {
		if args[i][0] == '-' && args[i+1][0] != '-' {
			m[args[i]] = args[i+1]
		}
	}
	return m
}

func contains(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func endsWith(args []string, value string) bool {
	if len(args) == 0 {
		return false
	}
	return args[len(args)-1] == value
}

func TestValidateNegativeMessages(t *testing.T) {
	err := Options{SegmentDuration: -3}.Validate()
	if err == nil || !strings.Contains(err.Error(), "must not be negative, got -3") {
		t.Errorf("unexpected error for negative duration: %v", err)
	}
	err = Options{Threads: -1}.Validate()
	if err == nil || !strings.Contains(err.Error(), "must not be negative, got -1") {
		t.Errorf("unexpected error for negative threads: %v", err)
	}
	if got := (Options{}).withDefaults().SegmentDuration; got != DefaultOptions().SegmentDuration {
		t.Errorf("zero duration should take the default, got %d", got)
	}
}
