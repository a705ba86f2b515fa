package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Metadata.Stores) == 0 {
		return fmt.Errorf("metadata.stores: at least one metadata store must be configured")
	}

	// Validate at least one repository exists
	if len(cfg.Repositories) == 0 {
		return fmt.Errorf("repositories: at least one repository must be configured")
	}

	names := make(map[string]bool)
	roots := make(map[string]string)
	for i, repo := range cfg.Repositories {
		// Validate repository names are unique
		if names[repo.Name] {
			return fmt.Errorf("repositories[%d]: duplicate repository name %q", i, repo.Name)
		}
		names[repo.Name] = true

		// Validate the referenced store is declared
		if _, ok := cfg.Metadata.Stores[repo.MetadataStore]; !ok {
			return fmt.Errorf("repositories[%d]: metadata store %q is not configured", i, repo.MetadataStore)
		}

		// Two repositories over one root would fight over the same files
		root := filepath.Clean(repo.Root)
		if other, ok := roots[root]; ok {
			return fmt.Errorf("repositories[%d]: root %q is already used by repository %q", i, repo.Root, other)
		}
		roots[root] = repo.Name
	}

	// Validate at least one adapter is enabled
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.HTTP.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the http adapter", cfg.Server.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
