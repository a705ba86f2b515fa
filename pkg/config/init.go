package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoRepo Configuration File
#
# Every value can be overridden with an environment variable named after its
# path, e.g. DITTOREPO_LOGGING_LEVEL=DEBUG or DITTOREPO_ADAPTERS_HTTP_PORT=9000.
`

// sectionComments documents the top-level sections of a generated file.
var sectionComments = map[string]string{
	"logging":      "# Log output: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)",
	"server":       "# Server-wide settings: graceful shutdown, the Prometheus endpoint and the\n# collector of records whose files no longer exist",
	"metadata":     "# Named metadata stores (type: memory, badger or sqlite). Repositories refer to them by name",
	"repositories": "# Served repositories. Each one is confined to its root directory.\n# reserved_prefixes hides matching names from listings (default: dotfiles)",
	"sessions":     "# Session table limits. Idle sessions are closed together with their streams",
	"adapters":     "# Protocol adapters. rate_limit.requests_per_second = 0 disables throttling",
}

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if the file already exists
// unless force is set.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath writes a default configuration file to configPath,
// creating parent directories as needed.
func InitConfigToPath(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a file header and a
// comment above each top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// Mapping content alternates key and value nodes
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return configHeader + "\n" + string(out), nil
}
