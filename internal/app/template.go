package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"whatsapp-campaign-launcher/internal/domain"
)

const namedParameters = "NAMED"

// TemplateProcessor implements ports.TemplateRenderer against the approved
// templates synced onto a channel.
type TemplateProcessor struct{}

// NewTemplateProcessor returns a TemplateProcessor.
func NewTemplateProcessor() *TemplateProcessor {
	return &TemplateProcessor{}
}

// Render matches the payload to an approved template by name and, when the
// payload carries one, language. Positional templates get their parameters
// ordered by numeric key; named templates get one named parameter per body
// variable. Variables with no value in the payload are left out and the
// provider decides whether the send is acceptable.
func (p *TemplateProcessor) Render(_ context.Context, ch *domain.Channel, payload domain.TemplatePayload) (domain.RenderedTemplate, error) {
	tpl, ok := findTemplate(ch, payload.Name, payload.Language)
	if !ok {
		return domain.RenderedTemplate{}, fmt.Errorf("%w: %q", domain.ErrTemplateUnresolvable, payload.Name)
	}

	vars := tpl.BodyVariables()
	named := strings.EqualFold(tpl.ParameterFormat, namedParameters)
	if !named {
		sort.SliceStable(vars, func(i, j int) bool { return numericKey(vars[i]) < numericKey(vars[j]) })
	}

	params := make([]domain.TemplateParameter, 0, len(vars))
	for _, v := range vars {
		val, ok := payload.BodyParams[v]
		if !ok {
			continue
		}
		param := domain.TemplateParameter{Type: "text", Text: val}
		if named {
			param.ParameterName = v
		}
		params = append(params, param)
	}

	return domain.RenderedTemplate{
		Name:         tpl.Name,
		Namespace:    payload.Namespace,
		LanguageCode: tpl.Language,
		Parameters:   params,
	}, nil
}

func findTemplate(ch *domain.Channel, name, language string) (domain.ChannelTemplate, bool) {
	if ch == nil || name == "" {
		return domain.ChannelTemplate{}, false
	}
	for _, t := range ch.ApprovedTemplates() {
		if t.Name != name {
			continue
		}
		if language != "" && t.Language != language {
			continue
		}
		return t, true
	}
	return domain.ChannelTemplate{}, false
}

func numericKey(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// BuildTemplatePayload deep-copies the base payload and fills the body
// parameters from the row, one entry per mapping. Cell values are used as-is.
func BuildTemplatePayload(base domain.TemplatePayload, mappings []domain.VariableMapping, row domain.Row) domain.TemplatePayload {
	payload := base.Clone()
	for _, m := range mappings {
		payload.BodyParams[m.VariableKey] = row[m.Column]
	}
	return payload
}

// RenderBody substitutes {{key}} placeholders in the raw body text for the
// message log. With no body text it falls back to "[template-name]".
func RenderBody(bodyText string, payload domain.TemplatePayload) string {
	if bodyText == "" {
		return "[" + payload.Name + "]"
	}
	keys := make([]string, 0, len(payload.BodyParams))
	for k := range payload.BodyParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", payload.BodyParams[k])
	}
	return strings.NewReplacer(pairs...).Replace(bodyText)
}
