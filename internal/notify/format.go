package notify

import "github.com/leadhub/leadhub/internal/domain"

type leadField struct {
	label string
	value string
}

// optionalLeadFields returns the nullable lead fields that carry a value, in
// display order.
func optionalLeadFields(lead domain.Lead) []leadField {
	candidates := []struct {
		label string
		value *string
	}{
		{"Company", lead.Company},
		{"Phone", lead.Phone},
		{"Budget", lead.Budget},
		{"Project Type", lead.ProjectType},
		{"Source", lead.Source},
	}
	var out []leadField
	for _, c := range candidates {
		if v, ok := domain.Value(c.value); ok {
			out = append(out, leadField{label: c.label, value: v})
		}
	}
	return out
}

func eventHeadline(e domain.Event) string {
	switch e {
	case domain.EventLeadCreated:
		return "🎯 New Lead"
	case domain.EventLeadStatusChanged:
		return "🔄 Lead Status Changed"
	case domain.EventLeadUpdated:
		return "✏️ Lead Updated"
	case domain.EventLeadDeleted:
		return "🗑️ Lead Deleted"
	case domain.EventLeadActivityAdded:
		return "📝 New Activity"
	}
	return "🔔 " + string(e)
}
