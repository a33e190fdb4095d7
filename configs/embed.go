// Package configs embeds the starter configuration files written by
// `notemesh config init`.
//
// Layers, lowest first (see internal/config Load):
//  1. defaults (config.NewConfig)
//  2. user config (~/.config/notemesh/config.yaml)
//  3. vault config (<vault>/.notemesh.yaml)
//  4. NOTEMESH_* environment variables
package configs

import _ "embed"

// UserConfigTemplate holds machine-wide settings: embedding provider,
// Ollama host, log level.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// VaultConfigTemplate holds per-vault settings: exclusions, backups,
// debounce and context limits.
//
//go:embed vault-config.example.yaml
var VaultConfigTemplate string
