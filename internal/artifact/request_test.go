package artifact

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcporter/internal/registry"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestFlagsValidate(t *testing.T) {
	tests := []struct {
		name    string
		flags   Flags
		wantErr string
	}{
		{name: "plain server", flags: Flags{Server: "linear"}},
		{name: "from alone", flags: Flags{From: "linear.go"}},
		{name: "from with dry run", flags: Flags{From: "linear.go", DryRun: true}},
		{name: "from with command", flags: Flags{From: "a.go", Command: "npx x"}, wantErr: "--from cannot be combined"},
		{name: "from with name", flags: Flags{From: "a.go", Name: "x"}, wantErr: "--from cannot be combined"},
		{name: "from with description", flags: Flags{From: "a.go", Description: "d"}, wantErr: "--from cannot be combined"},
		{name: "dry run without from", flags: Flags{Server: "linear", DryRun: true}, wantErr: "--dry-run requires --from"},
		{name: "zero timeout", flags: Flags{Server: "linear", TimeoutMs: intPtr(0)}, wantErr: "--timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveRequestDefaults(t *testing.T) {
	req, err := ResolveRequest(Flags{Server: "linear"}, Globals{ConfigPath: "cfg.json"})
	require.NoError(t, err)
	want := Request{ServerRef: "linear", ConfigPath: "cfg.json", TimeoutMs: DefaultTimeoutMs}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("ResolveRequest() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, KindTemplate, req.Kind())
}

func TestResolveRequestInlineCommand(t *testing.T) {
	req, err := ResolveRequest(Flags{
		Command:     "npx -y @acme/weather-mcp@latest",
		Description: "Weather",
		Bundle:      &Toggle{Mode: ToggleOn},
	}, Globals{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"weather-mcp","command":"npx -y @acme/weather-mcp@latest","description":"Weather"}`, req.ServerRef)
	assert.Equal(t, KindBundle, req.Kind())

	req, err = ResolveRequest(Flags{Command: "https://api.example.com/mcp", Name: "ex"}, Globals{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ex","command":"https://api.example.com/mcp"}`, req.ServerRef)
}

func TestResolveRequestNeedsServer(t *testing.T) {
	_, err := ResolveRequest(Flags{}, Globals{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--server")
}

func recordedMetadata() Metadata {
	return Metadata{
		GeneratedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Generator:   GeneratorInfo{Name: GeneratorName, Version: "1.2.3"},
		Server: ServerInfo{
			Name:       "linear",
			Definition: registry.ServerDefinition{Name: "linear", Command: registry.HTTPCommand{URL: "https://mcp.linear.app/mcp"}},
		},
		Artifact: ArtifactInfo{Path: "linear-cli", Kind: KindBundle},
		Invocation: Invocation{
			ServerRef:  "linear-ref",
			ConfigPath: "recorded.json",
			RootDir:    "/recorded",
			OutputPath: "recorded.go",
			Runtime:    RuntimeTinyGo,
			Bundle:     AtPath("linear-cli"),
			TimeoutMs:  12000,
			Minify:     true,
		},
	}
}

func TestResolveFromMetadataUsesRecordedValues(t *testing.T) {
	req, err := ResolveFromMetadata(Flags{From: "linear-cli"}, Globals{}, recordedMetadata())
	require.NoError(t, err)
	want := Request{
		ServerRef:  "linear-ref",
		ConfigPath: "recorded.json",
		RootDir:    "/recorded",
		OutputPath: "recorded.go",
		Runtime:    RuntimeTinyGo,
		Bundle:     AtPath("linear-cli"),
		TimeoutMs:  12000,
		Minify:     true,
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("ResolveFromMetadata() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveFromMetadataFlagsWin(t *testing.T) {
	flags := Flags{
		From:      "linear-cli",
		Server:    "override",
		Output:    "new.go",
		Runtime:   RuntimeGo,
		Bundle:    &Toggle{},
		Compile:   &Toggle{Mode: TogglePath, Path: "bin/linear"},
		TimeoutMs: intPtr(1000),
		Minify:    boolPtr(false),
	}
	req, err := ResolveFromMetadata(flags, Globals{ConfigPath: "flag.json", RootDir: "/flag"}, recordedMetadata())
	require.NoError(t, err)
	want := Request{
		ServerRef:  "override",
		ConfigPath: "flag.json",
		RootDir:    "/flag",
		OutputPath: "new.go",
		Runtime:    RuntimeGo,
		Compile:    AtPath("bin/linear"),
		TimeoutMs:  1000,
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("ResolveFromMetadata() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, KindBinary, req.Kind())
}

func TestResolveFromMetadataDefaults(t *testing.T) {
	m := recordedMetadata()
	m.Invocation = Invocation{}
	req, err := ResolveFromMetadata(Flags{From: "x"}, Globals{}, m)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeoutMs, req.TimeoutMs)
	assert.False(t, req.Minify)
	assert.False(t, req.Bundle.Enabled())
	assert.Equal(t, "linear", req.ServerRef, "server name is the fallback reference")
}

func TestResolveFromMetadataDefinitionFallback(t *testing.T) {
	m := recordedMetadata()
	m.Invocation = Invocation{}
	m.Server.Name = ""
	m.Server.Definition.Name = ""
	req, err := ResolveFromMetadata(Flags{From: "x"}, Globals{}, m)
	require.NoError(t, err)

	var def registry.ServerDefinition
	require.NoError(t, json.Unmarshal([]byte(req.ServerRef), &def))
	assert.Equal(t, registry.HTTPCommand{URL: "https://mcp.linear.app/mcp"}, def.Command)
}

func TestResolveFromMetadataValidates(t *testing.T) {
	_, err := ResolveFromMetadata(Flags{From: "x", Name: "y"}, Globals{}, recordedMetadata())
	assert.Error(t, err)
}

func TestParseRuntime(t *testing.T) {
	r, err := ParseRuntime("TinyGo")
	require.NoError(t, err)
	assert.Equal(t, RuntimeTinyGo, r)

	_, err = ParseRuntime("bun")
	assert.Error(t, err)
}

func TestDetectRuntime(t *testing.T) {
	only := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", assert.AnError
		}
	}

	r, err := DetectRuntime(only("go", "tinygo"))
	require.NoError(t, err)
	assert.Equal(t, RuntimeGo, r)

	r, err = DetectRuntime(only("tinygo"))
	require.NoError(t, err)
	assert.Equal(t, RuntimeTinyGo, r)

	_, err = DetectRuntime(only())
	assert.Error(t, err)
}
