package domain

import (
	"time"

	"github.com/google/uuid"
)

// VariableMapping binds a CSV column to a template body variable.
type VariableMapping struct {
	Column      string `json:"csv_column"`
	VariableKey string `json:"variable_index"`
}

// TemplateIdentity names a pre-registered provider template.
type TemplateIdentity struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Language  string `json:"language"`
}

// LaunchRequest carries everything a dispatch needs besides the staged rows.
type LaunchRequest struct {
	ChannelID   uuid.UUID
	PhoneColumn string
	NameColumn  string
	Mappings    []VariableMapping
	Delay       time.Duration
	Template    TemplateIdentity
	BodyText    string
}

// TemplatePayload is the per-row template bundle before provider resolution.
type TemplatePayload struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	Language   string            `json:"language"`
	BodyParams map[string]string `json:"body_params"`
}

// NewTemplatePayload starts a payload from a template identity with no variables.
func NewTemplatePayload(id TemplateIdentity) TemplatePayload {
	return TemplatePayload{
		Name:       id.Name,
		Namespace:  id.Namespace,
		Language:   id.Language,
		BodyParams: map[string]string{},
	}
}

// Clone returns a deep copy.
func (p TemplatePayload) Clone() TemplatePayload {
	out := p
	out.BodyParams = make(map[string]string, len(p.BodyParams))
	for k, v := range p.BodyParams {
		out.BodyParams[k] = v
	}
	return out
}

// TemplateParameter is one resolved body parameter in provider wire format.
type TemplateParameter struct {
	Type          string `json:"type"`
	Text          string `json:"text"`
	ParameterName string `json:"parameter_name,omitempty"`
}

// RenderedTemplate is a template payload resolved against a channel's approved templates.
type RenderedTemplate struct {
	Name         string
	Namespace    string
	LanguageCode string
	Parameters   []TemplateParameter
}
