package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reference collection names as published by the remote side.
const (
	CollectionClients        = "clientes"
	CollectionSocialNetworks = "redes-sociales"
	CollectionStates         = "estados"
	CollectionMunicipalities = "municipios"
	CollectionParishes       = "parroquias"
	CollectionCities         = "ciudades"
	CollectionCategories     = "categorias"
	CollectionQuestions      = "preguntas"
	CollectionPaymentMethods = "formas-pago"
	CollectionPaymentTerms   = "condiciones-pago"
)

var idKeys = map[string]string{
	CollectionSocialNetworks: "idRedSocial",
	CollectionStates:         "idEstado",
	CollectionMunicipalities: "idMunicipio",
	CollectionParishes:       "idParroquia",
	CollectionCities:         "idCiudad",
	CollectionCategories:     "idCategoria",
	CollectionQuestions:      "idPregunta",
	CollectionPaymentMethods: "idFormaPago",
	CollectionPaymentTerms:   "idCondicionPago",
}

// IDKey returns the identifier field for a collection, defaulting to "id".
func IDKey(collection string) string {
	if k, ok := idKeys[collection]; ok {
		return k
	}
	return "id"
}

// Entity is one reference row. Rows are kept as decoded maps because each
// collection carries its own set of columns.
type Entity map[string]interface{}

// Int reads a numeric attribute, returning 0 when absent or not numeric.
func (e Entity) Int(key string) int64 {
	switch v := e[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		return Number(v).Int64()
	case string:
		return Number(strings.TrimSpace(v)).Int64()
	}
	return 0
}

// Description returns the display text, trying the usual column names.
func (e Entity) Description() string {
	for _, key := range []string{"descripcion", "nombre", "pregunta", "name"} {
		if s, ok := e[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Children returns nested rows under key (for example municipalities of a
// state). Non-object elements are skipped.
func (e Entity) Children(key string) []Entity {
	raw, ok := e[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Entity, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, Entity(m))
		}
	}
	return out
}

// QuestionKind is a stable tag telling the form how to render a question.
type QuestionKind string

const (
	QuestionGeneral       QuestionKind = "GENERAL"
	QuestionSupplierCount QuestionKind = "SUPPLIER_COUNT"
	QuestionYesNo         QuestionKind = "YES_NO"
	QuestionNumeric       QuestionKind = "NUMERIC"
	QuestionFreeText      QuestionKind = "FREE_TEXT"
)

// QuestionKindKey is the column carrying the tag on question rows.
const QuestionKindKey = "questionKind"

// Kind returns the question tag; untagged or unknown values are GENERAL.
func (e Entity) Kind() QuestionKind {
	s, _ := e[QuestionKindKey].(string)
	switch k := QuestionKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case QuestionSupplierCount, QuestionYesNo, QuestionNumeric, QuestionFreeText:
		return k
	}
	return QuestionGeneral
}

type Collection []Entity

// UnmarshalJSON accepts a bare array or an object wrapping it under "rows".
// Anything else decodes to an empty collection.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var rows []Entity
	if err := json.Unmarshal(data, &rows); err == nil {
		*c = nonNil(rows)
		return nil
	}
	var wrapped struct {
		Rows []Entity `json:"rows"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("collection payload is neither an array nor {rows}: %w", err)
	}
	*c = nonNil(wrapped.Rows)
	return nil
}

func nonNil(rows []Entity) Collection {
	if rows == nil {
		return Collection{}
	}
	return Collection(rows)
}

// Find returns the row whose idKey equals id.
func (c Collection) Find(idKey string, id int64) (Entity, bool) {
	for _, e := range c {
		if e.Int(idKey) == id {
			return e, true
		}
	}
	return nil, false
}

// CollectionMeta is the staleness descriptor stored as {name}.meta.json.
type CollectionMeta struct {
	FechaCreacion     string `json:"fecha_creacion"`
	FechaModificacion string `json:"fecha_modificacion"`
}

// SameVersion reports whether both descriptors name the same revision.
func (m CollectionMeta) SameVersion(other CollectionMeta) bool {
	return m.FechaCreacion == other.FechaCreacion && m.FechaModificacion == other.FechaModificacion
}

func (m *CollectionMeta) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.FechaCreacion = looseString(raw["fecha_creacion"])
	m.FechaModificacion = looseString(raw["fecha_modificacion"])
	return nil
}
