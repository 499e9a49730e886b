package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/upstream"
)

// Document types with a skeleton. Any other type falls back to DocAutoApertura.
const (
	DocAutoApertura         = "auto_apertura"
	DocResolucionAcusacion  = "resolucion_acusacion"
	fieldDate               = "fecha"
	documentPromptPreamble  = "Genera un documento legal colombiano completo basado en esta plantilla y datos del caso:"
	documentPromptGuideline = `El documento debe:
- Seguir la estructura legal colombiana
- Incluir fundamentos jurídicos apropiados
- Citar artículos específicos del Código Penal y CPP
- Ser formalmente correcto y profesional`
)

// Case data fields interpolated into skeletons as {field}.
var templateFields = []string{"fiscalia", "defendant", "crime_type", "case_number"}

// Template is a document skeleton with per-field placeholder defaults.
type Template struct {
	Body     string            `yaml:"body"`
	Defaults map[string]string `yaml:"defaults"`
}

// Templates maps a document type onto its skeleton.
type Templates map[string]Template

func DefaultTemplates() Templates {
	return Templates{
		DocAutoApertura: {
			Body: `AUTO DE APERTURA DE INVESTIGACIÓN

FISCALÍA {fiscalia}
UNIDAD DE DELITOS CONTRA LA ADMINISTRACIÓN PÚBLICA
RADICADO: {case_number}

Bogotá D.C., {fecha}

VISTOS:

Los hechos puestos en conocimiento de esta Fiscalía...`,
			Defaults: map[string]string{
				"fiscalia":    "GENERAL DE LA NACIÓN",
				"case_number": "[RADICADO]",
			},
		},
		DocResolucionAcusacion: {
			Body: `RESOLUCIÓN DE ACUSACIÓN

FISCALÍA GENERAL DE LA NACIÓN
{fiscalia}
RADICADO: {case_number}

En el proceso penal seguido contra {defendant}
por el delito de {crime_type}

RESUELVE:

PRIMERO: ACUSAR formalmente a...`,
			Defaults: map[string]string{
				"fiscalia":    "FISCALÍA LOCAL",
				"defendant":   "[IMPUTADO]",
				"crime_type":  "[TIPO DE DELITO]",
				"case_number": "[RADICADO]",
			},
		},
	}
}

// Lookup returns the skeleton for docType, falling back to DocAutoApertura.
func (t Templates) Lookup(docType string) Template {
	if tpl, ok := t[docType]; ok {
		return tpl
	}
	return t[DocAutoApertura]
}

// Render interpolates case data into the skeleton. Missing or empty fields take the
// skeleton's default; a field without a default is left empty.
func (tpl Template) Render(caseData map[string]any, now time.Time) string {
	pairs := make([]string, 0, 2*(len(templateFields)+1))
	for _, field := range templateFields {
		pairs = append(pairs, "{"+field+"}", fieldValue(caseData, field, tpl.Defaults[field]))
	}
	pairs = append(pairs, "{"+fieldDate+"}", now.Format("2/1/2006"))
	return strings.NewReplacer(pairs...).Replace(tpl.Body)
}

func fieldValue(caseData map[string]any, field, def string) string {
	v, ok := caseData[field]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

// LoadTemplates reads skeleton overrides from a YAML file and merges them over the
// defaults:
//
//	auto_apertura:
//	  body: |
//	    AUTO DE APERTURA ...
//	  defaults:
//	    fiscalia: SECCIONAL DE BOGOTÁ
//
// Only the known document types may be overridden.
func LoadTemplates(path string) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var overrides Templates
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}

	out := DefaultTemplates()
	for docType, tpl := range overrides {
		base, ok := out[docType]
		if !ok {
			return nil, fmt.Errorf("templates %s: unknown document type %q", path, docType)
		}
		if strings.TrimSpace(tpl.Body) != "" {
			base.Body = tpl.Body
		}
		for k, v := range tpl.Defaults {
			base.Defaults[k] = v
		}
		out[docType] = base
	}
	return out, nil
}

// GenerateDocument drafts a legal document: the skeleton for the requested type is
// filled with the case data and forwarded upstream together with the raw case data.
func (s *Service) GenerateDocument(ctx context.Context, req *message.GenerateDocumentRequest) (string, error) {
	prompt, err := s.documentPrompt(req.DocumentType, req.CaseData)
	if err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, &upstream.Request{
		Model:   orDefault(req.Model, s.cfg.DocumentModel),
		Prompt:  prompt,
		Options: s.cfg.Options,
	})
}

func (s *Service) documentPrompt(docType string, caseData map[string]any) (string, error) {
	if caseData == nil {
		caseData = map[string]any{}
	}
	data, err := json.Marshal(caseData)
	if err != nil {
		return "", fmt.Errorf("encode case data: %w", err)
	}
	skeleton := s.cfg.Templates.Lookup(docType).Render(caseData, s.now().In(s.cfg.Location))

	var b strings.Builder
	b.WriteString(documentPromptPreamble)
	b.WriteString("\n\nPlantilla:\n")
	b.WriteString(skeleton)
	b.WriteString("\n\nDatos del caso: ")
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString(documentPromptGuideline)
	b.WriteString("\n")
	return b.String(), nil
}
