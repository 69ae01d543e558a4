package config

// WebhookConfig secures and addresses the decision callback surface.
type WebhookConfig struct {
	// HmacSecret is the shared secret for x-signature verification on
	// the decision webhook.
	HmacSecret string

	// PublicURL is the externally reachable base URL of the API server,
	// advertised to callback senders. Optional.
	PublicURL string

	// WidgetPublicURL is the base URL embedded in Room-2 widget messages.
	// Falls back to PublicURL when unset.
	WidgetPublicURL string
}

func loadWebhookConfig() (WebhookConfig, error) {
	secret, err := requireEnv("WEBHOOK_HMAC_SECRET")
	if err != nil {
		return WebhookConfig{}, err
	}
	publicURL := getEnvOrDefault("WEBHOOK_PUBLIC_URL", "")
	return WebhookConfig{
		HmacSecret:      secret,
		PublicURL:       publicURL,
		WidgetPublicURL: getEnvOrDefault("WIDGET_PUBLIC_URL", publicURL),
	}, nil
}
