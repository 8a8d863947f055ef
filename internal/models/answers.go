package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Number accepts JSON numbers and numeric text from form inputs. It is
// written back as a JSON number when it parses as one.
type Number string

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	if isJSONNumber(string(n)) {
		return []byte(n), nil
	}
	return json.Marshal(string(n))
}

// isJSONNumber reports whether s is a number literal exactly as JSON spells
// it. Text such as "05", ".5", "+3" or "NaN" parses as a float but is kept as
// a string.
func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	return json.Valid([]byte(s))
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*n = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
	case bytes.Equal(data, []byte("true")):
		*n = "1"
	case bytes.Equal(data, []byte("false")):
		*n = "0"
	default:
		*n = Number(data)
	}
	return nil
}

// Float64 returns the numeric value, 0 when empty or not numeric.
func (n Number) Float64() float64 {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

func (n Number) Int64() int64 {
	return int64(n.Float64())
}

// Value is the form used in remote payloads: a number when n parses, the
// raw text otherwise.
func (n Number) Value() interface{} {
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	}
	return string(n)
}

type CategoryQuantity struct {
	IDCategoria Number `json:"idCategoria"`
	Cantidad    Number `json:"cantidad"`
}

type QuestionResponse struct {
	IDPregunta  Number      `json:"idPregunta"`
	Respuesta   interface{} `json:"respuesta"`
	Comentarios string      `json:"comentarios,omitempty"`
}

// QuestionResponses also accepts the grouped shape (an array of arrays) and
// flattens it in order.
type QuestionResponses []QuestionResponse

func (q *QuestionResponses) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(QuestionResponses, 0, len(items))
	for _, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var nested QuestionResponses
			if err := json.Unmarshal(trimmed, &nested); err != nil {
				return err
			}
			out = append(out, nested...)
			continue
		}
		var r QuestionResponse
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return err
		}
		out = append(out, r)
	}
	*q = out
	return nil
}

type PaymentMethodFlag struct {
	IDFormaPago Number `json:"idFormaPago"`
	Respuesta   Number `json:"respuesta"`
}

// Accepted reports whether the surveyed business takes this payment method.
func (p PaymentMethodFlag) Accepted() bool {
	return p.Respuesta.Float64() == 1
}

type PaymentCondition struct {
	IDCondicionPago Number `json:"idCondicionPago"`
	DiaContado      Number `json:"diaContado"`
	DiaCredito      Number `json:"diaCredito"`
}

// AnswerBundle holds the survey answers of one client record. It is stored
// apart from the record, keyed by the record's local id.
type AnswerBundle struct {
	Categorias    []CategoryQuantity  `json:"categorias,omitempty"`
	Preguntas     QuestionResponses   `json:"preguntas,omitempty"`
	FormaPago     []PaymentMethodFlag `json:"forma-pago,omitempty"`
	CondicionPago *PaymentCondition   `json:"condicion-pago,omitempty"`
}

// AnswerMap is the persisted answers collection.
type AnswerMap map[string]AnswerBundle
