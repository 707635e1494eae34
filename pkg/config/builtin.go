package config

// BuiltinConfig holds the agents and capabilities that ship with the
// system. Users override or extend them in ensemble.yaml and
// capabilities.yaml; a user entry with the same name replaces the
// built-in one entirely.
type BuiltinConfig struct {
	Agents       map[string]AgentConfig
	Capabilities map[string]CapabilityConfig
}

// GetBuiltinConfig returns the built-in agent roster and capability tiers.
func GetBuiltinConfig() *BuiltinConfig {
	return &BuiltinConfig{
		Agents: map[string]AgentConfig{
			"technical_support": {
				Role:      "Senior Technical Support Engineer",
				Goal:      "resolve integration, API, and infrastructure problems quickly and accurately",
				Backstory: "Ten years debugging production incidents across webhooks, databases, and deployment pipelines.",
				Keywords: []string{
					"api", "webhook", "endpoint", "integration", "error", "bug",
					"timeout", "ssl", "certificate", "database", "deploy", "rate limit",
				},
				Domain:              "technical",
				PreferredTier:       "balanced",
				Tools:               []string{"knowledge_search", "web_scrape"},
				SpecializationScore: 0.9,
				CollaborationScore:  0.7,
				Avatar:              "wrench",
				Color:               "#2563eb",
			},
			"billing_support": {
				Role:      "Billing Operations Specialist",
				Goal:      "explain charges, invoices, refunds, and plan changes clearly",
				Backstory: "Handles subscription billing edge cases, proration math, and dunning flows daily.",
				Keywords: []string{
					"billing", "invoice", "charge", "refund", "payment", "subscription",
					"plan", "upgrade", "downgrade", "proration", "credit",
				},
				Domain:              "billing",
				PreferredTier:       "fast",
				Tools:               []string{"knowledge_search"},
				SpecializationScore: 0.85,
				CollaborationScore:  0.8,
				Avatar:              "receipt",
				Color:               "#16a34a",
			},
			"security_analyst": {
				Role:      "Application Security Analyst",
				Goal:      "assess vulnerabilities, authentication issues, and data protection questions",
				Backstory: "Background in penetration testing and compliance audits for SaaS platforms.",
				Keywords: []string{
					"security", "vulnerability", "breach", "authentication", "oauth",
					"encryption", "token", "signature", "replay", "compliance", "gdpr",
				},
				Domain:              "security",
				PreferredTier:       "powerful",
				Tools:               []string{"vulnerability_scan"},
				SpecializationScore: 0.9,
				CollaborationScore:  0.6,
				Avatar:              "shield",
				Color:               "#dc2626",
			},
			"account_manager": {
				Role:      "Customer Account Manager",
				Goal:      "handle account changes, escalations, and relationship questions with empathy",
				Backstory: "Owns the post-sales relationship for mid-market accounts.",
				Keywords: []string{
					"account", "escalate", "cancel", "renewal", "contract", "complaint",
					"feedback", "manager", "unhappy",
				},
				Domain:              "support",
				PreferredTier:       "fast",
				SpecializationScore: 0.7,
				CollaborationScore:  0.9,
				Avatar:              "handshake",
				Color:               "#9333ea",
			},
		},
		Capabilities: map[string]CapabilityConfig{
			"fast": {
				ModelID:      "gpt-4o-mini",
				Temperature:  0.7,
				MaxTokens:    2048,
				CostPerToken: 0.00000015,
			},
			"balanced": {
				ModelID:      "gpt-4o",
				Temperature:  0.7,
				MaxTokens:    4096,
				CostPerToken: 0.0000025,
			},
			"powerful": {
				ModelID:      "gpt-4.1",
				Temperature:  0.5,
				MaxTokens:    8192,
				CostPerToken: 0.000008,
			},
			"reasoning": {
				ModelID:      "o3-mini",
				Temperature:  1.0,
				MaxTokens:    8192,
				CostPerToken: 0.0000044,
			},
		},
	}
}
