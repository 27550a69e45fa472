package commands

import (
	"fmt"

	"github.com/livetemplate/karigar/internal/server"
)

// ValidateCommand loads the configuration the way serve would and checks
// that the page template parses.
func ValidateCommand(args []string) error {
	opts, err := parseServeArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	if err := srv.Close(); err != nil {
		return err
	}

	fmt.Printf("✅ Configuration is valid\n")
	fmt.Printf("  backend:  %s%s\n", cfg.Backend.GetURL(), cfg.Backend.GetEndpoint())
	fmt.Printf("  listen:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Server.TemplateDir != "" {
		fmt.Printf("  template: %s\n", cfg.Server.TemplateDir)
	} else {
		fmt.Printf("  template: built-in\n")
	}
	fmt.Printf("  tones:    %v\n", cfg.Form.GetTones())
	return nil
}
