package assembler

import (
	"fmt"

	"github.com/solatis/policysmith/internal/types"
)

/*
 * Complaints handling assembler.
 *
 * Hand-written policy: it never consults rules. Its decision tree is the
 * complaintsModules table below; each row targets one template section and
 * fires on one answer combination.
 *
 * Answer keys (camelCase, as captured by the policy wizard):
 *   detailLevel, includeAppendices      shared options
 *   jurisdiction                        "uk" | "cross-border"
 *   paymentRails                        subset of stripe, thunes, swift
 *   identityVerification                "electronic" | "documentary"
 *   oversightLevel                      "standard" | "enhanced"
 *   vulnerabilityPosture                "low" | "medium" | "high"
 *   boardAccountability                 bool
 *   channels                            subset of phone, email, post, digital
 */

// ComplaintsPolicyKey is the policy key served by ComplaintsAssembler.
const ComplaintsPolicyKey = "complaints"

// Complaints section ids.
const (
	SectionStatement  = "statement"
	SectionScope      = "scope"
	SectionProcess    = "process"
	SectionGovernance = "governance"
	SectionRecords    = "records"
	SectionFOS        = "appendix-fos"
	SectionForms      = "appendix-forms"
)

// ComplaintsCaps caps the high-volume process section harder than the rest.
var ComplaintsCaps = Caps{
	Focused:         map[string]int{SectionProcess: 3, SectionGovernance: 2},
	Standard:        map[string]int{SectionProcess: 6, SectionGovernance: 4},
	DefaultFocused:  2,
	DefaultStandard: 4,
}

var complaintsModules = []dynamicModule{
	{
		id:        "cross-border",
		title:     "Cross-border complaints",
		summary:   "Handling complaints from customers outside the UK.",
		sectionID: SectionScope,
		clauseIDs: []string{"cmp_cross_border_jurisdiction"},
		when:      answerEquals("jurisdiction", "cross-border"),
	},
	{
		id:        "rail-stripe",
		title:     "Stripe disputes",
		summary:   "Chargebacks and disputes raised through Stripe.",
		sectionID: SectionProcess,
		clauseIDs: []string{"cmp_rail_stripe_disputes"},
		when:      listIncludes("paymentRails", "stripe"),
	},
	{
		id:        "rail-thunes",
		title:     "Thunes payouts",
		summary:   "Complaints about payouts delivered through Thunes.",
		sectionID: SectionProcess,
		clauseIDs: []string{"cmp_rail_thunes_payouts"},
		when:      listIncludes("paymentRails", "thunes"),
	},
	{
		id:        "rail-swift",
		title:     "SWIFT transfers",
		summary:   "Tracing and recall of SWIFT transfers under complaint.",
		sectionID: SectionProcess,
		clauseIDs: []string{"cmp_rail_swift_recalls"},
		when:      listIncludes("paymentRails", "swift"),
	},
	{
		id:        "idv-electronic",
		title:     "Electronic identity verification",
		summary:   "Verifying complainants with electronic checks.",
		sectionID: SectionProcess,
		clauseIDs: []string{"cmp_idv_electronic"},
		when:      answerEquals("identityVerification", "electronic"),
	},
	{
		id:        "enhanced-oversight",
		title:     "Enhanced oversight",
		summary:   "Second-line review of complaint outcomes.",
		sectionID: SectionGovernance,
		clauseIDs: []string{"cmp_enhanced_oversight"},
		when:      answerEquals("oversightLevel", "enhanced"),
	},
	{
		id:        "high-vulnerability",
		title:     "Vulnerable customers",
		summary:   "Additional support for customers in vulnerable circumstances.",
		sectionID: SectionProcess,
		clauseIDs: []string{"cmp_vulnerable_customers"},
		when:      answerEquals("vulnerabilityPosture", "high"),
	},
	{
		id:        "board-accountability",
		title:     "Board accountability",
		summary:   "Board-level ownership of complaints outcomes.",
		sectionID: SectionGovernance,
		clauseIDs: []string{"cmp_board_accountability"},
		when:      answerTrue("boardAccountability"),
	},
	{
		id:        "digital-channel",
		title:     "Digital channel",
		summary:   "Complaints received through app and web chat.",
		sectionID: SectionProcess,
		clauseIDs: []string{"cmp_digital_channel"},
		when:      listIncludes("channels", "digital"),
	},
}

// ComplaintsAssembler is the declarative Complaints Handling assembler.
type ComplaintsAssembler struct {
	Caps Caps
}

// NewComplaintsAssembler creates a ComplaintsAssembler with ComplaintsCaps.
func NewComplaintsAssembler() *ComplaintsAssembler {
	return &ComplaintsAssembler{Caps: ComplaintsCaps}
}

// Assemble implements Assembler.
func (a *ComplaintsAssembler) Assemble(tmpl types.Template, answers types.Answers) Assembly {
	asm := build(tmpl, OptionsFrom(answers), a.Caps, complaintsModules, answers)

	// DISP 1.6: eight weeks for a final response, 15 business days when
	// the complaint concerns a payment service.
	asm.Variables["complaints.final_response_weeks"] = 8
	if len(listAnswer(answers, "paymentRails")) > 0 {
		asm.Variables["complaints.payment_response_days"] = 15
	}
	return asm
}

// ComplaintsTemplate is the built-in Complaints Handling template. Stored
// templates with the same policy key take precedence.
func ComplaintsTemplate() types.Template {
	return types.Template{
		ID:        "tpl_complaints_v1",
		PolicyKey: ComplaintsPolicyKey,
		Name:      "Complaints Handling Policy",
		Sections: []types.Section{
			{
				ID: SectionStatement, Title: "Policy statement", SectionType: types.SectionPolicy,
				Summary:          "Commitment to fair complaint handling.",
				SuggestedClauses: []string{"cmp_statement_commitment", "cmp_statement_definition", "cmp_statement_free_of_charge"},
			},
			{
				ID: SectionScope, Title: "Scope", SectionType: types.SectionPolicy,
				Summary:          "Who may complain and which activities are covered.",
				SuggestedClauses: []string{"cmp_scope_eligible", "cmp_scope_activities", "cmp_scope_exclusions"},
			},
			{
				ID: SectionProcess, Title: "Handling process", SectionType: types.SectionProcedure,
				Summary: "From receipt to final response.",
				SuggestedClauses: []string{
					"cmp_process_receipt", "cmp_process_acknowledge", "cmp_process_investigate",
					"cmp_process_summary_resolution", "cmp_process_final_response",
					"cmp_process_redress", "cmp_process_referral", "cmp_process_escalation",
				},
			},
			{
				ID: SectionGovernance, Title: "Governance and oversight", SectionType: types.SectionPolicy,
				Summary: "Ownership, MI and root-cause analysis.",
				SuggestedClauses: []string{
					"cmp_gov_owner", "cmp_gov_mi", "cmp_gov_root_cause", "cmp_gov_training", "cmp_gov_review",
				},
			},
			{
				ID: SectionRecords, Title: "Record keeping and reporting", SectionType: types.SectionProcedure,
				Summary:          "Retention and regulatory returns.",
				SuggestedClauses: []string{"cmp_records_retention", "cmp_records_return"},
			},
			{
				ID: SectionFOS, Title: "Appendix A: Financial Ombudsman Service", SectionType: types.SectionAppendix,
				Summary:          "FOS referral rights and wording.",
				SuggestedClauses: []string{"cmp_appendix_fos_rights", "cmp_appendix_fos_wording", "cmp_appendix_fos_contact"},
			},
			{
				ID: SectionForms, Title: "Appendix B: Forms", SectionType: types.SectionAppendix,
				Summary:          "Complaint log and response letter templates.",
				SuggestedClauses: []string{"cmp_appendix_form_log", "cmp_appendix_form_letter"},
			},
		},
	}
}

func answerEquals(key, want string) func(types.Answers) (string, bool) {
	return func(a types.Answers) (string, bool) {
		if stringAnswer(a, key) != want {
			return "", false
		}
		return fmt.Sprintf("%s is %s", key, want), true
	}
}

func answerTrue(key string) func(types.Answers) (string, bool) {
	return func(a types.Answers) (string, bool) {
		if !boolAnswer(a, key) {
			return "", false
		}
		return fmt.Sprintf("%s is set", key), true
	}
}

func listIncludes(key, want string) func(types.Answers) (string, bool) {
	return func(a types.Answers) (string, bool) {
		if !contains(listAnswer(a, key), want) {
			return "", false
		}
		return fmt.Sprintf("%s includes %s", key, want), true
	}
}
