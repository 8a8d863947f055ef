// internal/workers/sync/push-clients/models.go
package pushclients

import (
	"time"

	"survey-sync/internal/models"
)

// Reasons for a run that never touched a record.
const (
	ReasonNoConnection    = "sin_conexion"
	ReasonConnectionError = "error_conexion"
)

// Final state of one record in the outcome log.
const (
	StateOK      = "ok"
	StatePartial = "parcial"
	StateFailed  = "fallo"
)

// Step is one remote call, after retries.
type Step struct {
	Name     string `json:"paso"`
	URL      string `json:"url"`
	Attempts int    `json:"intentos"`
	OK       bool   `json:"ok"`
	Status   int    `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RecordOutcome struct {
	LocalID  string `json:"idLocal"`
	ServerID string `json:"idServer,omitempty"`
	State    string `json:"estado"`
	SyncedAt string `json:"fechaSincronizacion,omitempty"`
	Steps    []Step `json:"pasos"`
}

type Summary struct {
	Total   int `json:"total"`
	OK      int `json:"ok"`
	Partial int `json:"parcial"`
	Failed  int `json:"fallo"`
}

// RunResult is the outcome log of one push run. It is never persisted.
type RunResult struct {
	OK         bool            `json:"ok"`
	Reason     string          `json:"razon,omitempty"`
	ErrorCode  string          `json:"codigoError,omitempty"`
	RunID      string          `json:"runId"`
	BaseURL    string          `json:"base"`
	StartedAt  time.Time       `json:"inicio"`
	FinishedAt time.Time       `json:"fin"`
	Records    []RecordOutcome `json:"clientesProcesados"`
	Summary    Summary         `json:"resumen"`
}

func (r *RunResult) add(o RecordOutcome) {
	r.Records = append(r.Records, o)
	r.Summary.Total++
	switch o.State {
	case StateOK:
		r.Summary.OK++
	case StatePartial:
		r.Summary.Partial++
	default:
		r.Summary.Failed++
	}
}

// Request bodies of the dependent endpoints.

type clientRef struct {
	IDCliente interface{} `json:"idCliente"`
}

type socialNetworkRef struct {
	IDRedSocial int `json:"idRedSocial"`
}

type socialNetworkBody struct {
	Usuario   string           `json:"usuario"`
	Cliente   clientRef        `json:"cliente"`
	RedSocial socialNetworkRef `json:"redSocial"`
}

type categoryRef struct {
	IDCategoria models.Number `json:"idCategoria"`
}

type categoryBody struct {
	Cliente   clientRef     `json:"cliente"`
	Categoria categoryRef   `json:"categoria"`
	Cantidad  models.Number `json:"cantidad"`
}

type questionRef struct {
	IDPregunta models.Number `json:"idPregunta"`
}

type instrumentRef struct {
	IDInstrumento int `json:"idInstrumento"`
}

type answerBody struct {
	Cliente     clientRef     `json:"cliente"`
	Pregunta    questionRef   `json:"pregunta"`
	Instrumento instrumentRef `json:"instrumento"`
	Respuesta   interface{}   `json:"respuesta"`
	Comentarios string        `json:"comentarios"`
}

type paymentMethodRef struct {
	IDFormaPago models.Number `json:"idFormaPago"`
}

type paymentMethodBody struct {
	ID        interface{}      `json:"id"`
	Cliente   clientRef        `json:"cliente"`
	FormaPago paymentMethodRef `json:"formaPago"`
}

type paymentTermRef struct {
	IDCondicionPago models.Number `json:"idCondicionPago"`
}

type paymentTermBody struct {
	Cliente       clientRef      `json:"cliente"`
	CondicionPago paymentTermRef `json:"condicionPago"`
	DiaContado    interface{}    `json:"diaContado"`
	DiaCredito    interface{}    `json:"diaCredito"`
}
