package config

import (
	"fmt"
	"os"
	"strings"
)

// BootstrapAdmin seeds the first admin account at startup. Seeding is
// skipped when either field is empty.
type BootstrapAdmin struct {
	Email    string
	Password string
}

func loadBootstrapAdmin() (BootstrapAdmin, error) {
	password := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if file := strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD_FILE")); file != "" && password == "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return BootstrapAdmin{}, fmt.Errorf("%w: BOOTSTRAP_ADMIN_PASSWORD_FILE: %v", ErrInvalidEnv, err)
		}
		password = strings.TrimSpace(string(raw))
	}
	return BootstrapAdmin{
		Email:    getEnvOrDefault("BOOTSTRAP_ADMIN_EMAIL", ""),
		Password: password,
	}, nil
}
