// Package artifact generates standalone CLIs bound to one MCP server and
// reads back the metadata they carry.
package artifact

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/giantswarm/mcporter/internal/registry"
)

// GeneratorName is recorded in every artifact.
const GeneratorName = "mcporter"

const (
	markerPrefix = "mcporter:metadata:"
	markerSuffix = ":end"
)

// Kind is the shape of a generated artifact.
type Kind string

const (
	KindTemplate Kind = "template"
	KindBundle   Kind = "bundle"
	KindBinary   Kind = "binary"
)

// Metadata is embedded in every generated artifact and is enough to
// regenerate it.
type Metadata struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Generator   GeneratorInfo `json:"generator"`
	Server      ServerInfo    `json:"server"`
	Artifact    ArtifactInfo  `json:"artifact"`
	Invocation  Invocation    `json:"invocation"`
}

type GeneratorInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerInfo struct {
	Name       string                    `json:"name,omitempty"`
	Source     *registry.Source          `json:"source,omitempty"`
	Definition registry.ServerDefinition `json:"definition"`
}

type ArtifactInfo struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Invocation holds the generate-cli inputs that produced the artifact.
type Invocation struct {
	ServerRef  string  `json:"serverRef,omitempty"`
	ConfigPath string  `json:"configPath,omitempty"`
	RootDir    string  `json:"rootDir,omitempty"`
	OutputPath string  `json:"outputPath,omitempty"`
	Runtime    Runtime `json:"runtime,omitempty"`
	Bundle     Toggle  `json:"bundle"`
	Compile    Toggle  `json:"compile"`
	TimeoutMs  int     `json:"timeoutMs,omitempty"`
	Minify     bool    `json:"minify"`
}

// MetadataError reports an artifact whose metadata cannot be read.
type MetadataError struct {
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to read CLI metadata from %s: %v", e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// ErrNoMetadata means the file does not contain an mcporter metadata marker.
var ErrNoMetadata = errors.New("no mcporter metadata found")

// Marker encodes m as the string embedded in generated sources.
func (m Metadata) Marker() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return markerPrefix + base64.StdEncoding.EncodeToString(data) + markerSuffix, nil
}

// DecodeMetadata finds the first valid marker in data. Sources, bundle
// directories and compiled binaries all carry the marker verbatim.
func DecodeMetadata(data []byte) (Metadata, error) {
	rest := data
	var lastErr error
	for {
		i := bytes.Index(rest, []byte(markerPrefix))
		if i < 0 {
			break
		}
		rest = rest[i+len(markerPrefix):]
		j := bytes.Index(rest, []byte(markerSuffix))
		if j < 0 {
			break
		}
		m, err := decodePayload(rest[:j])
		if err == nil {
			return m, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return Metadata{}, lastErr
	}
	return Metadata{}, ErrNoMetadata
}

func decodePayload(payload []byte) (Metadata, error) {
	raw, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata encoding: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata document: %w", err)
	}
	if m.Artifact.Kind == "" || m.Generator.Name == "" {
		return Metadata{}, fmt.Errorf("incomplete metadata document")
	}
	return m, nil
}

// ReadMetadata loads the metadata of the artifact at path. A directory is
// treated as a bundle and its main.go is read.
func ReadMetadata(path string) (Metadata, error) {
	target := path
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, &MetadataError{Path: path, Err: err}
	}
	if info.IsDir() {
		target = filepath.Join(path, bundleMainFile)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return Metadata{}, &MetadataError{Path: path, Err: err}
	}
	m, err := DecodeMetadata(data)
	if err != nil {
		return Metadata{}, &MetadataError{Path: path, Err: err}
	}
	return m, nil
}
