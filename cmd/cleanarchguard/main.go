// Command cleanarchguard checks that packages under modules/ only import
// inward: presentation and infrastructure may use services, services may use
// domain, and domain imports none of them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roblaszczak/go-cleanarch/cleanarch"
	"gopkg.in/yaml.v3"
)

type config struct {
	Version           int      `yaml:"version"`
	Root              string   `yaml:"root"`
	IgnoreTests       bool     `yaml:"ignore_tests"`
	IgnorePackages    []string `yaml:"ignore_packages"`
	SharedModules     []string `yaml:"shared_modules"`
	AllowedViolations []string `yaml:"allow_violations"`
	Aliases           struct {
		Domain         []string `yaml:"domain"`
		Application    []string `yaml:"application"`
		Interfaces     []string `yaml:"interfaces"`
		Infrastructure []string `yaml:"infrastructure"`
	} `yaml:"aliases"`
}

var (
	defaultDomainAliases         = []string{"domain", "entities", "aggregates"}
	defaultApplicationAliases    = []string{"services", "application"}
	defaultInterfacesAliases     = []string{"presentation", "controllers"}
	defaultInfrastructureAliases = []string{"infrastructure", "persistence"}
)

var errViolations = errors.New("layer violations found")

func main() {
	var (
		configPath = flag.String("config", ".gocleanarch.yml", "path to the config file")
		debug      = flag.Bool("debug", false, "enable go-cleanarch debug output")
	)
	flag.Parse()

	if *debug {
		cleanarch.Log.SetOutput(os.Stderr)
	}
	if err := run(*configPath, os.Stderr); err != nil {
		log.Fatalf("cleanarchguard: %v", err)
	}
	log.Println("cleanarchguard: ok")
}

func run(configPath string, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	root, err := resolveRoot(cfg.Root)
	if err != nil {
		return err
	}

	ok, errs, err := cleanarch.NewValidator(layerAliases(cfg)).Validate(root, cfg.IgnoreTests, cfg.IgnorePackages)
	if err != nil {
		return fmt.Errorf("validate %s: %w", root, err)
	}
	filtered := filterValidationErrors(errs, cfg)
	if ok || len(filtered) == 0 {
		return nil
	}
	for _, validationErr := range filtered {
		fmt.Fprintln(out, validationErr.Error())
	}
	return fmt.Errorf("%w: %d", errViolations, len(filtered))
}

// loadConfig falls back to the built-in layout when path does not exist.
func loadConfig(path string) (*config, error) {
	cfg := &config{Version: 1, IgnoreTests: true}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Root == "" {
		cfg.Root = "modules"
	}
	return cfg, nil
}

func resolveRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errors.New("root must not be empty")
	}
	return filepath.Abs(root)
}

func layerAliases(cfg *config) map[string]cleanarch.Layer {
	aliases := map[string]cleanarch.Layer{}
	applyAliases(aliases, cfg.Aliases.Domain, defaultDomainAliases, cleanarch.LayerDomain)
	applyAliases(aliases, cfg.Aliases.Application, defaultApplicationAliases, cleanarch.LayerApplication)
	applyAliases(aliases, cfg.Aliases.Interfaces, defaultInterfacesAliases, cleanarch.LayerInterfaces)
	applyAliases(aliases, cfg.Aliases.Infrastructure, defaultInfrastructureAliases, cleanarch.LayerInfrastructure)
	return aliases
}

func applyAliases(dst map[string]cleanarch.Layer, custom []string, defaults []string, layer cleanarch.Layer) {
	candidates := defaults
	if len(custom) > 0 {
		candidates = custom
	}
	for _, alias := range candidates {
		if alias = strings.TrimSpace(alias); alias != "" {
			dst[alias] = layer
		}
	}
}

var crossModulePattern = regexp.MustCompile(`between ([\w-]+) and ([\w-]+) modules`)

func filterValidationErrors(errs []cleanarch.ValidationError, cfg *config) []cleanarch.ValidationError {
	if len(errs) == 0 {
		return nil
	}

	shared := make(map[string]struct{}, len(cfg.SharedModules))
	for _, module := range cfg.SharedModules {
		if module = strings.TrimSpace(module); module != "" {
			shared[module] = struct{}{}
		}
	}

	filtered := make([]cleanarch.ValidationError, 0, len(errs))
	for _, validationErr := range errs {
		msg := validationErr.Error()
		if skipCrossModule(msg, shared) || allowed(msg, cfg.AllowedViolations) {
			continue
		}
		filtered = append(filtered, validationErr)
	}
	return filtered
}

func skipCrossModule(msg string, shared map[string]struct{}) bool {
	if len(shared) == 0 {
		return false
	}
	matches := crossModulePattern.FindStringSubmatch(msg)
	if len(matches) != 3 {
		return false
	}
	_, left := shared[matches[1]]
	_, right := shared[matches[2]]
	return left || right
}

func allowed(msg string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
