// internal/workers/sync/push-clients/handler.go
package pushclients

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	stderrors "survey-sync/internal/common/errors"
	httpclient "survey-sync/internal/common/http"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/common/metrics"
	"survey-sync/internal/common/observability"
	"survey-sync/internal/common/validation"
	"survey-sync/internal/models"
	"survey-sync/internal/notify"
	"survey-sync/internal/records"

	"github.com/google/uuid"
)

const (
	TaskType = "push-clients"
)

var ErrRootMissingID = errors.New("ROOT_MISSING_ID")

// Poster issues JSON POSTs with bounded retries.
type Poster interface {
	PostJSON(ctx context.Context, url string, body interface{}, policy httpclient.RetryPolicy) *httpclient.Result
}

// BaseURLSource resolves the API base URL at the start of every run.
type BaseURLSource interface {
	GetAPIBaseURLOrDefault(ctx context.Context, fallback string) string
}

// StaticBaseURL always resolves to the same URL.
type StaticBaseURL string

func (s StaticBaseURL) GetAPIBaseURLOrDefault(context.Context, string) string {
	return httpclient.NormalizeBaseURL(string(s))
}

type Handler struct {
	config       *Config
	records      *records.Store
	client       Poster
	connectivity httpclient.Connectivity
	baseURL      BaseURLSource
	observer     notify.Observer
	obs          *observability.Observability
	errors       *stderrors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(
	config *Config,
	store *records.Store,
	client Poster,
	connectivity httpclient.Connectivity,
	baseURL BaseURLSource,
	observer notify.Observer,
	obs *observability.Observability,
	log logger.Logger,
) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	errs := stderrors.NewErrorHandler(log).
		WithRetries(stderrors.ErrCodeRootCreateFailed, config.RootRetries).
		WithRetries(stderrors.ErrCodeRootMissingID, config.RootRetries).
		WithRetries(stderrors.ErrCodeDependentWriteFailed, config.DependentRetries)
	return &Handler{
		config:       config,
		records:      store,
		client:       client,
		connectivity: connectivity,
		baseURL:      baseURL,
		observer:     observer,
		obs:          obs,
		errors:       errs,
		logger:       log,
		now:          time.Now,
	}
}

// WithClock replaces the time source used for sync stamps, for tests.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Execute pushes every pending client record. Failures are reported per
// record in the result; an error is returned only when ctx ends the run.
func (h *Handler) Execute(ctx context.Context) (*RunResult, error) {
	return h.execute(ctx)
}

func (h *Handler) execute(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		RunID:     uuid.New().String(),
		StartedAt: h.now().UTC(),
		Records:   []RecordOutcome{},
	}
	res.BaseURL = h.baseURL.GetAPIBaseURLOrDefault(ctx, h.config.DefaultBaseURL)
	log := h.logger.WithFields(map[string]interface{}{"runId": res.RunID, "base": res.BaseURL})

	online, err := h.connectivity.IsOnline(ctx)
	switch {
	case err != nil:
		stdErr := h.errors.Handle(TaskType, stderrors.NewConnectionCheckFailedError(err), map[string]interface{}{"runId": res.RunID})
		res.ErrorCode = string(stdErr.Code)
		return h.finish(ctx, log, res, ReasonConnectionError), nil
	case !online:
		stdErr := stderrors.NewNoConnectionError()
		res.ErrorCode = string(stdErr.Code)
		log.Warn("no connection, push skipped", map[string]interface{}{
			"errorCode":     res.ErrorCode,
			"errorCategory": stderrors.GetErrorCategory(stdErr.Code),
		})
		return h.finish(ctx, log, res, ReasonNoConnection), nil
	}

	pending := h.records.ListPending(ctx)
	answers := h.records.ReadAnswers(ctx)
	log.Info("push started", map[string]interface{}{"pending": len(pending)})

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			h.finish(ctx, log, res, "cancelled")
			return res, err
		}
		outcome := h.pushRecord(ctx, log, res.BaseURL, rec, answers[rec.ID])
		res.add(outcome)
		metrics.PushRecords.WithLabelValues(outcome.State).Inc()
	}

	res.OK = true
	return h.finish(ctx, log, res, ""), nil
}

func (h *Handler) finish(ctx context.Context, log logger.Logger, res *RunResult, reason string) *RunResult {
	res.Reason = reason
	res.FinishedAt = h.now().UTC()

	label := reason
	if label == "" {
		label = "ok"
	}
	metrics.PushRuns.WithLabelValues(label).Inc()
	h.obs.RecordRun(context.WithoutCancel(ctx), "push", label, res.FinishedAt.Sub(res.StartedAt))

	log.Info("push finished", map[string]interface{}{
		"ok":      res.OK,
		"reason":  reason,
		"total":   res.Summary.Total,
		"synced":  res.Summary.OK,
		"partial": res.Summary.Partial,
		"failed":  res.Summary.Failed,
	})
	return res
}

// pushRecord walks one record through the state machine: root create, then
// dependent writes in fixed order, then the local sync stamp.
func (h *Handler) pushRecord(
	ctx context.Context,
	log logger.Logger,
	base string,
	rec models.ClientRecord,
	bundle models.AnswerBundle,
) RecordOutcome {
	log = log.WithFields(map[string]interface{}{"idCliente": rec.ID})
	machine := newRecordMachine(log)
	outcome := RecordOutcome{LocalID: rec.ID, Steps: []Step{}}

	_ = machine.Event(ctx, eventCreate)

	rootPolicy := httpclient.RetryPolicy{Retries: h.config.RootRetries, Delay: h.config.RetryDelay}
	step, data := h.post(ctx, log, "clientes", "POST /clientes", httpclient.JoinURL(base, "clientes"), rec.RemotePayload(), rootPolicy)
	if !step.OK {
		outcome.Steps = append(outcome.Steps, step)
		h.errors.Handle(TaskType, stderrors.NewRootCreateFailedError(rec.ID, errors.New(step.Error)), nil)
		_ = machine.Event(ctx, eventRootFailed)
		outcome.State = outcomeState(machine.Current())
		return outcome
	}

	serverID, ok := createdID(data)
	if !ok {
		step.OK = false
		step.Error = fmt.Sprintf("%v: response carries no idCliente", ErrRootMissingID)
		outcome.Steps = append(outcome.Steps, step)
		h.errors.Handle(TaskType, stderrors.NewRootMissingIDError(rec.ID), map[string]interface{}{"status": step.Status})
		_ = machine.Event(ctx, eventRootFailed)
		outcome.State = outcomeState(machine.Current())
		return outcome
	}
	outcome.Steps = append(outcome.Steps, step)
	outcome.ServerID = fmt.Sprint(serverID)
	_ = machine.Event(ctx, eventRootCreated)

	failed := h.attach(ctx, log, base, rec, bundle, clientRef{IDCliente: serverID}, &outcome)

	if failed > 0 && h.config.StrictDependents {
		_ = machine.Event(ctx, eventIncomplete)
		outcome.State = outcomeState(machine.Current())
		log.Warn("dependent writes failed, record stays pending", map[string]interface{}{"failed": failed})
		return outcome
	}

	stamp, err := h.records.MarkSynced(ctx, rec.ID, h.now())
	if err != nil {
		outcome.Steps = append(outcome.Steps, Step{Name: "mark synced", Error: err.Error()})
		h.errors.Handle(TaskType, err, map[string]interface{}{"idCliente": rec.ID, "idServer": outcome.ServerID})
		_ = machine.Event(ctx, eventMarkFailed)
		outcome.State = outcomeState(machine.Current())
		return outcome
	}
	_ = machine.Event(ctx, eventComplete)
	outcome.State = outcomeState(machine.Current())
	outcome.SyncedAt = stamp

	if h.observer != nil {
		h.observer.NotifyChanged()
	}
	return outcome
}

// attach issues the dependent writes and returns how many failed.
func (h *Handler) attach(
	ctx context.Context,
	log logger.Logger,
	base string,
	rec models.ClientRecord,
	bundle models.AnswerBundle,
	client clientRef,
	outcome *RecordOutcome,
) int {
	policy := httpclient.RetryPolicy{Retries: h.config.DependentRetries, Delay: h.config.RetryDelay}
	failed := 0
	call := func(resource, name, path string, body interface{}) {
		step, _ := h.post(ctx, log, resource, name, httpclient.JoinURL(base, path), body, policy)
		outcome.Steps = append(outcome.Steps, step)
		if !step.OK {
			failed++
			h.errors.Handle(TaskType, stderrors.NewDependentWriteFailedError(name, errors.New(step.Error)), map[string]interface{}{
				"idCliente": rec.ID,
				"idServer":  outcome.ServerID,
			})
		}
	}

	for _, sn := range models.SocialNetworks {
		handle := rec.Field(sn.Field)
		if handle == "" {
			continue
		}
		call("clientes-redes-sociales", fmt.Sprintf("POST /clientes-redes-sociales (%s)", sn.Field), "clientes-redes-sociales",
			socialNetworkBody{Usuario: handle, Cliente: client, RedSocial: socialNetworkRef{IDRedSocial: sn.ID}})
	}

	for _, cat := range bundle.Categorias {
		if !idSet(cat.IDCategoria) {
			continue
		}
		call("clientes-categorias", "POST /clientes-categorias", "clientes-categorias",
			categoryBody{Cliente: client, Categoria: categoryRef{IDCategoria: cat.IDCategoria}, Cantidad: cat.Cantidad})
	}

	if len(bundle.Preguntas) > 0 {
		batch := make([]answerBody, 0, len(bundle.Preguntas))
		for _, q := range bundle.Preguntas {
			batch = append(batch, answerBody{
				Cliente:     client,
				Pregunta:    questionRef{IDPregunta: q.IDPregunta},
				Instrumento: instrumentRef{IDInstrumento: h.config.InstrumentID},
				Respuesta:   q.Respuesta,
				Comentarios: q.Comentarios,
			})
		}
		path := strings.TrimLeft(h.config.AnswersPath, "/")
		call("respuestas", "POST /"+path, path, batch)
	}

	for _, fp := range bundle.FormaPago {
		if !fp.Accepted() || !idSet(fp.IDFormaPago) {
			continue
		}
		call("clientes-formas-pago", "POST /clientes-formas-pago", "clientes-formas-pago",
			paymentMethodBody{ID: client.IDCliente, Cliente: client, FormaPago: paymentMethodRef{IDFormaPago: fp.IDFormaPago}})
	}

	if cp := bundle.CondicionPago; cp != nil && idSet(cp.IDCondicionPago) {
		call("clientes-condicion-pago", "POST /clientes-condicion-pago", "clientes-condicion-pago",
			paymentTermBody{
				Cliente:       client,
				CondicionPago: paymentTermRef{IDCondicionPago: cp.IDCondicionPago},
				DiaContado:    numberOrZero(cp.DiaContado),
				DiaCredito:    numberOrZero(cp.DiaCredito),
			})
	}
	return failed
}

func (h *Handler) post(
	ctx context.Context,
	log logger.Logger,
	resource, name, url string,
	body interface{},
	policy httpclient.RetryPolicy,
) (Step, interface{}) {
	start := time.Now()
	r := h.client.PostJSON(ctx, url, body, policy)
	metrics.RemoteCallDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())

	step := Step{Name: name, URL: url, Attempts: r.Attempts, OK: r.OK, Status: r.Status}
	fields := map[string]interface{}{
		"step":     name,
		"url":      url,
		"attempts": r.Attempts,
		"status":   r.Status,
	}
	if r.OK {
		metrics.RemoteCalls.WithLabelValues(resource, "ok").Inc()
		log.Info("remote call succeeded", fields)
		return step, r.Data
	}

	if r.Err != nil {
		step.Error = r.Err.Error()
	} else {
		step.Error = "request failed"
	}
	fields["error"] = step.Error
	metrics.RemoteCalls.WithLabelValues(resource, "error").Inc()
	log.Warn("remote call failed", fields)
	return step, r.Data
}

// createdID extracts the server-assigned identifier from a root create
// response. Whole numbers come back as int64.
func createdID(data interface{}) (interface{}, bool) {
	if res := validation.ValidateClientCreated(data); !res.Valid {
		return nil, false
	}
	switch v := data.(map[string]interface{})["idCliente"].(type) {
	case float64:
		if v == 0 {
			return nil, false
		}
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return v, true
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// idSet mirrors the remote side's notion of a present id: empty and zero
// are absent.
func idSet(n models.Number) bool {
	if n == "" {
		return false
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return f != 0
	}
	return true
}

func numberOrZero(n models.Number) interface{} {
	f := n.Float64()
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}
