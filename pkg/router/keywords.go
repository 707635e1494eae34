package router

// categoryTerms maps each routing category to the terms that trigger it.
// A query token matching the category name or any related term counts as a
// category-level signal for agents keyed on that category.
var categoryTerms = map[string][]string{
	"webhook":     {"webhooks", "callback", "endpoint", "signature", "payload", "event"},
	"billing":     {"invoice", "payment", "charge", "refund", "subscription", "pricing", "plan"},
	"security":    {"auth", "authentication", "authorization", "token", "encryption", "vulnerability", "breach"},
	"database":    {"sql", "query", "schema", "migration", "index", "postgres", "replica"},
	"deployment":  {"deploy", "release", "rollout", "rollback", "pipeline", "kubernetes", "docker"},
	"legal":       {"contract", "compliance", "gdpr", "privacy", "terms", "license", "dpa"},
	"competitive": {"competitor", "alternative", "comparison", "market", "benchmark"},
	"marketing":   {"campaign", "seo", "analytics", "conversion", "funnel", "audience"},
	"support":     {"help", "issue", "problem", "error", "broken", "troubleshoot", "ticket"},
}

// categoriesFor returns the categories triggered by the token set.
func categoriesFor(tokens map[string]bool) map[string]bool {
	hit := make(map[string]bool)
	for category, terms := range categoryTerms {
		if tokens[category] {
			hit[category] = true
			continue
		}
		for _, term := range terms {
			if tokens[term] {
				hit[category] = true
				break
			}
		}
	}
	return hit
}

// categoryMatch reports whether a keyword belongs to any triggered category.
func categoryMatch(keyword string, categories map[string]bool) bool {
	for category := range categories {
		if keyword == category {
			return true
		}
		for _, term := range categoryTerms[category] {
			if keyword == term {
				return true
			}
		}
	}
	return false
}
