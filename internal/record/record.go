// Package record defines the canonical acórdão entity and the normalizer
// that maps raw catalog records onto it.
package record

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
)

// Acordao is one STJ decision record as stored locally. Every field is
// textual; optional fields are empty strings rather than pointers so the
// store can treat the whole struct as a flat column tuple.
type Acordao struct {
	ID                        string
	NumeroDocumento           string
	NumeroProcesso            string
	NumeroRegistro            string
	SiglaClasse               string
	DescricaoClasse           string
	ClassePadronizada         string
	OrgaoJulgador             string
	MinistroRelator           string
	DataPublicacao            string
	Ementa                    string
	TipoDecisao               string
	DataDecisao               string // YYYYMMDD or empty
	Decisao                   string
	JurisprudenciaCitada      string
	Notas                     string
	InformacoesComplementares string
	TermosAuxiliares          string
	TeseJuridica              string
	Tema                      string
	ReferenciasLegislativas   string // JSON-encoded array or empty
	AcordaosSimilares         string // JSON-encoded array or empty
}

// MalformedRecordError reports a raw record that cannot be normalized.
// The only unrecoverable defect is a missing id: it is the primary key,
// so there is no safe default for it.
type MalformedRecordError struct {
	Field string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: missing %s", e.Field)
}

// Normalize maps a raw catalog record (external camelCase field names,
// optional fields, list-valued fields) into an Acordao. Missing optional
// fields become empty strings. referenciasLegislativas and
// acordaosSimilares may arrive as lists of objects; they are serialized
// to a JSON string preserving the original structure and encoding.
func Normalize(raw map[string]any) (Acordao, error) {
	id := stringField(raw, "id")
	if id == "" {
		return Acordao{}, &MalformedRecordError{Field: "id"}
	}

	return Acordao{
		ID:                        id,
		NumeroDocumento:           stringField(raw, "numeroDocumento"),
		NumeroProcesso:            stringField(raw, "numeroProcesso"),
		NumeroRegistro:            stringField(raw, "numeroRegistro"),
		SiglaClasse:               stringField(raw, "siglaClasse"),
		DescricaoClasse:           stringField(raw, "descricaoClasse"),
		ClassePadronizada:         stringField(raw, "classePadronizada"),
		OrgaoJulgador:             stringField(raw, "nomeOrgaoJulgador"),
		MinistroRelator:           stringField(raw, "ministroRelator"),
		DataPublicacao:            stringField(raw, "dataPublicacao"),
		Ementa:                    stringField(raw, "ementa"),
		TipoDecisao:               stringField(raw, "tipoDeDecisao"),
		DataDecisao:               stringField(raw, "dataDecisao"),
		Decisao:                   stringField(raw, "decisao"),
		JurisprudenciaCitada:      stringField(raw, "jurisprudenciaCitada"),
		Notas:                     stringField(raw, "notas"),
		InformacoesComplementares: stringField(raw, "informacoesComplementares"),
		TermosAuxiliares:          stringField(raw, "termosAuxiliares"),
		TeseJuridica:              stringField(raw, "teseJuridica"),
		Tema:                      stringField(raw, "tema"),
		ReferenciasLegislativas:   listField(raw, "referenciasLegislativas"),
		AcordaosSimilares:         listField(raw, "acordaosSimilares"),
	}, nil
}

// stringField fetches a field as a string. Numeric ids arrive as numbers
// in some resources, so scalars are stringified rather than rejected.
func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case int64:
		return fmt.Sprintf("%d", s)
	case float64:
		// ojg parses integral JSON numbers as int64; float64 only shows up
		// via encoding/json in tests.
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// listField serializes a list-valued field to its canonical string form:
// empty string when absent or empty, otherwise the JSON encoding of the
// original list. Non-list values pass through as plain strings.
func listField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return ""
		}
		return oj.JSON(list)
	}
	return stringField(raw, key)
}
