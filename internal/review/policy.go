package review

import (
	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
)

// Role is an actor's editorial permission level, ordered.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   0,
	RoleEditor:   1,
	RoleReviewer: 2,
	RoleAdmin:    3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r carries at least the permissions of other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Policy is the resolved set of review requirements for one
// site/content-type/risk combination.
type Policy struct {
	RequiredRole         Role `yaml:"required_role"`
	RequireQAChecklist   bool `yaml:"require_qa_checklist"`
	RequireExpertSignoff bool `yaml:"require_expert_signoff"`
	AutoPublish          bool `yaml:"auto_publish"`
}

// Rule binds a policy to a (site, content-type, risk) key. Empty fields
// in the key are not matched against; the resolver only consults rules
// with all three set.
type Rule struct {
	SiteID      string              `yaml:"site_id"`
	ContentType content.ContentType `yaml:"content_type"`
	RiskLevel   content.RiskLevel   `yaml:"risk_level"`
	Policy      Policy              `yaml:"policy"`
}

// Resolver answers policy lookups. It is a pure function of its inputs
// over an immutable rule table, so the state machine can call it
// repeatedly within one transition decision without drift.
type Resolver struct {
	rules        []Rule
	riskDefaults map[content.RiskLevel]Policy
}

func NewResolver(rules []Rule, riskDefaults map[content.RiskLevel]Policy) *Resolver {
	return &Resolver{rules: rules, riskDefaults: riskDefaults}
}

// Resolve returns the policy for the given key. Precedence: an exact
// (site, content-type, risk) rule wins; then the risk-level default;
// then a conservative global default (QA required, expert signoff for
// high risk, no auto-publish).
func (r *Resolver) Resolve(siteID string, contentType content.ContentType, risk content.RiskLevel) Policy {
	for _, rule := range r.rules {
		if rule.SiteID == siteID && rule.ContentType == contentType && rule.RiskLevel == risk {
			return rule.Policy
		}
	}

	if p, ok := r.riskDefaults[risk]; ok {
		return p
	}

	return Policy{
		RequiredRole:         RoleReviewer,
		RequireQAChecklist:   true,
		RequireExpertSignoff: risk == content.RiskHigh,
		AutoPublish:          false,
	}
}
