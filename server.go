package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-report-checkout/catalog"
	"go-report-checkout/checkout"
	_ "go-report-checkout/docs"
	"go-report-checkout/form"
	"go-report-checkout/images"
	"go-report-checkout/payment"

	"github.com/gorilla/mux"
	"github.com/swaggo/swag"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_DECODE_BODY = "failed to decode request body"
const ERR_UNAUTHORIZED = "missing or invalid form token"
const ERR_FORM_NOT_FOUND = "form not found"
const ERR_FORM_BUSY = "a submission is already in progress"
const ERR_MULTIPART = "failed to parse multipart form"
const ERR_NO_CHECKOUT = "no checkout is waiting for a payment result"
const ERR_PAYMENT_RESULT = "invalid payment result"

const multipartMemory = 32 << 20

type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	UseTls         bool   `json:"use_tls,omitempty" mapstructure:"use_tls"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty" mapstructure:"tls_priv_key_path"`
	TlsCertPath    string `json:"tls_cert_path,omitempty" mapstructure:"tls_cert_path"`
	// StaticPath is the built frontend; nothing is served from / when empty.
	StaticPath string `json:"static_path,omitempty" mapstructure:"static_path"`
}

type ServerState struct {
	// ctx outlives single requests; submissions waiting for payment run under it.
	ctx          context.Context
	registry     *FormRegistry
	storage      SessionStorage
	tokens       FormTokenCreator
	orchestrator *checkout.Orchestrator
	events       *EventBroadcaster
	maxUpload    int64
}

type SpaHandler struct {
	staticPath string
	indexPath  string
}

type Server struct {
	server *http.Server
	config ServerConfig
	cancel context.CancelFunc
	events *EventBroadcaster
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	}
	slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	s.cancel()
	s.events.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

// ServeHTTP serves a file of the built frontend, or its index page for any
// path that is not a file.
func (h SpaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticPath, r.URL.Path)
	fi, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && fi.IsDir()) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}
	if err != nil {
		slog.Error("Error stating file", "path", path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

// NewServer wires the routes. state.ctx is replaced by one that Stop cancels.
func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	if state.registry == nil || state.tokens == nil || state.orchestrator == nil || state.events == nil {
		return nil, errors.New("server state is incomplete")
	}
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)

	parent := state.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	state.ctx = ctx

	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := writeJSON(w, http.StatusOK, map[string]bool{"ok": true}); err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/docs/swagger.json", handleSwaggerDoc).Methods(http.MethodGet)

	router.HandleFunc("/api/forms", func(w http.ResponseWriter, r *http.Request) {
		handleCreateForm(state, w, r)
	})
	router.HandleFunc("/api/forms/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetForm(state, w, r)
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/forms/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteForm(state, w, r)
	}).Methods(http.MethodDelete)
	router.HandleFunc("/api/forms/{id}/category", func(w http.ResponseWriter, r *http.Request) {
		handleSelectCategory(state, w, r)
	})
	router.HandleFunc("/api/forms/{id}/subtype", func(w http.ResponseWriter, r *http.Request) {
		handleSelectSubtype(state, w, r)
	})
	router.HandleFunc("/api/forms/{id}/submit", func(w http.ResponseWriter, r *http.Request) {
		handleSubmit(state, w, r)
	})
	router.HandleFunc("/api/forms/{id}/payment", func(w http.ResponseWriter, r *http.Request) {
		handlePaymentSuccess(state, w, r)
	})
	router.HandleFunc("/api/forms/{id}/payment-failed", func(w http.ResponseWriter, r *http.Request) {
		handlePaymentFailed(state, w, r)
	})
	router.HandleFunc(eventsPathPrefix+"{id}", func(w http.ResponseWriter, r *http.Request) {
		handleEvents(state, w, r)
	}).Methods(http.MethodGet)

	slog.Debug("Registered all API routes")

	if config.StaticPath != "" {
		router.PathPrefix("/").Handler(SpaHandler{staticPath: config.StaticPath, indexPath: "index.html"})
	}

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler:      router,
		Addr:         addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
		cancel: cancel,
		events: state.events,
	}, nil
}

type CreateFormResponse struct {
	FormId string    `json:"form_id"`
	Token  string    `json:"token"`
	View   form.View `json:"view"`
}

type SubmitResponse struct {
	Checkout  *payment.CheckoutOptions `json:"checkout,omitempty"`
	ErrorKind string                   `json:"error_kind,omitempty"`
	View      form.View                `json:"view"`
}

type CategoryRequest struct {
	Category string `json:"category"`
}

type SubtypeRequest struct {
	Subtype string `json:"subtype"`
}

type PaymentFailedRequest struct {
	Error payment.Failure `json:"error"`
}

func handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to read api doc", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

func handleCreateForm(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	instance, err := state.registry.Create()
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to create form", err)
		return
	}

	token, err := state.tokens.CreateFormToken(instance.Id)
	if err != nil {
		_ = state.registry.Remove(instance.Id)
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to create form token", err)
		return
	}

	response := CreateFormResponse{FormId: instance.Id, Token: token, View: instance.Controller.View()}
	if err := writeJSON(w, http.StatusCreated, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleGetForm(state *ServerState, w http.ResponseWriter, r *http.Request) {
	formId, ok := authorizeForm(state, w, r)
	if !ok {
		return
	}

	view, err := state.storage.RetrieveView(formId)
	if errors.Is(err, ErrSessionNotFound) {
		respondWithErr(w, http.StatusNotFound, ERR_FORM_NOT_FOUND, "form view not stored", err)
		return
	}
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to retrieve form view", err)
		return
	}
	if err := writeJSON(w, http.StatusOK, view); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleDeleteForm(state *ServerState, w http.ResponseWriter, r *http.Request) {
	formId, ok := authorizeForm(state, w, r)
	if !ok {
		return
	}

	err := state.registry.Remove(formId)
	switch {
	case errors.Is(err, ErrFormNotFound):
		respondWithErr(w, http.StatusNotFound, ERR_FORM_NOT_FOUND, "cannot remove form", err)
	case errors.Is(err, ErrFormBusy):
		respondWithErr(w, http.StatusConflict, ERR_FORM_BUSY, "cannot remove form", err)
	case err != nil:
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "cannot remove form", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSelectCategory(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}
	instance, ok := requireForm(state, w, r)
	if !ok {
		return
	}

	var request CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}
	category, err := catalog.ParseCategory(request.Category)
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid category", "unknown category", err)
		return
	}
	if instance.busy() {
		respondWithErr(w, http.StatusConflict, ERR_FORM_BUSY, "selection during submission", nil)
		return
	}

	instance.Controller.SelectCategory(category)
	if err := writeJSON(w, http.StatusOK, instance.Controller.View()); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleSelectSubtype(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}
	instance, ok := requireForm(state, w, r)
	if !ok {
		return
	}

	var request SubtypeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}
	subtype, err := catalog.ParseSubtype(request.Subtype)
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid subtype", "unknown subtype", err)
		return
	}
	if instance.busy() {
		respondWithErr(w, http.StatusConflict, ERR_FORM_BUSY, "selection during submission", nil)
		return
	}

	if err := instance.Controller.SelectIndividualSubtype(subtype); err != nil {
		respondWithErr(w, http.StatusBadRequest, err.Error(), "subtype rejected", err)
		return
	}
	if err := writeJSON(w, http.StatusOK, instance.Controller.View()); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// handleSubmit starts the orchestrator and answers as soon as the checkout is
// open, or with the failed view when the submission ends earlier. Uploads are
// fully encoded before the checkout opens, so the multipart temp files may be
// removed once this handler returns.
func handleSubmit(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}
	instance, ok := requireForm(state, w, r)
	if !ok {
		return
	}

	if state.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 4*state.maxUpload+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid form", ERR_MULTIPART, err)
		return
	}

	// The run is claimed first so a losing request never touches the selection.
	run, err := instance.startRun()
	if err != nil {
		respondWithErr(w, http.StatusConflict, ERR_FORM_BUSY, "submission rejected", err)
		return
	}
	if err := applySubmittedSelection(instance, r.MultipartForm); err != nil {
		close(run.done)
		respondWithErr(w, http.StatusBadRequest, err.Error(), "invalid selection", err)
		return
	}

	// Drop a checkout left over from a submission that ended before it was read.
	select {
	case <-instance.Widget.Opened():
	default:
	}

	view := instance.Controller.View()
	sub := buildSubmission(view, r.MultipartForm)
	slog.Info("Submission received", "form_id", instance.Id, "category", sub.Category, "subtype", sub.Subtype)

	go func() {
		defer close(run.done)
		run.result, run.err = state.orchestrator.Submit(withFormId(state.ctx, instance.Id), instance.Controller, sub)
	}()

	select {
	case options := <-instance.Widget.Opened():
		response := SubmitResponse{Checkout: &options, View: instance.Controller.View()}
		if err := writeJSON(w, http.StatusOK, response); err != nil {
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		}
	case <-run.done:
		respondSubmitOutcome(w, instance, run.err)
	}
}

func respondSubmitOutcome(w http.ResponseWriter, instance *FormInstance, err error) {
	if errors.Is(err, form.ErrSubmissionInProgress) {
		respondWithErr(w, http.StatusConflict, ERR_FORM_BUSY, "submission rejected", err)
		return
	}

	status := http.StatusOK
	response := SubmitResponse{View: instance.Controller.View()}
	var ce *checkout.Error
	if errors.As(err, &ce) {
		status = http.StatusUnprocessableEntity
		response.ErrorKind = string(ce.Kind)
	} else if err != nil {
		status = http.StatusInternalServerError
	}
	if err := writeJSON(w, status, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// applySubmittedSelection honours the radio buttons posted with the form.
func applySubmittedSelection(instance *FormInstance, mf *multipart.Form) error {
	if v := firstValue(mf, "reportOption"); v != "" {
		category, err := catalog.ParseCategory(v)
		if err != nil {
			return err
		}
		instance.Controller.SelectCategory(category)
	}
	if v := firstValue(mf, "individualReportType"); v != "" {
		subtype, err := catalog.ParseSubtype(v)
		if err != nil {
			return err
		}
		if instance.Controller.View().Category == catalog.Individual {
			return instance.Controller.SelectIndividualSubtype(subtype)
		}
	}
	return nil
}

func buildSubmission(view form.View, mf *multipart.Form) checkout.Submission {
	sub := checkout.Submission{
		Category: view.Category,
		Subtype:  view.Subtype,
		Language: firstValue(mf, "language"),
		Values:   make(map[string]string),
		Files:    make(map[string]images.Upload),
	}
	req := catalog.RequirementsFor(view.Category)
	for _, field := range req.TextFields() {
		sub.Values[field] = firstValue(mf, field)
	}
	for _, field := range req.UploadFields() {
		if headers := mf.File[field]; len(headers) > 0 && headers[0].Size > 0 {
			sub.Files[field] = images.FromFileHeader(headers[0])
		}
	}
	return sub
}

func firstValue(mf *multipart.Form, key string) string {
	if mf == nil {
		return ""
	}
	if values := mf.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func handlePaymentSuccess(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}
	instance, ok := requireForm(state, w, r)
	if !ok {
		return
	}

	var result payment.Result
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}

	if err := instance.Widget.Complete(result); err != nil {
		respondPaymentRelayErr(w, err)
		return
	}
	slog.Info("Payment result relayed", "form_id", instance.Id, "order_id", result.OrderID)

	if err := writeJSON(w, http.StatusAccepted, instance.Controller.View()); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handlePaymentFailed(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}
	instance, ok := requireForm(state, w, r)
	if !ok {
		return
	}

	var request PaymentFailedRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}

	if err := instance.Widget.Fail(request.Error); err != nil {
		respondPaymentRelayErr(w, err)
		return
	}
	slog.Info("Payment failure relayed", "form_id", instance.Id, "code", request.Error.Code, "reason", request.Error.Reason)

	// The orchestrator shows the failure and releases the form.
	instance.waitRun(r.Context())
	if err := writeJSON(w, http.StatusAccepted, instance.Controller.View()); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func respondPaymentRelayErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoPendingCheckout), errors.Is(err, payment.ErrAlreadyResolved):
		respondWithErr(w, http.StatusConflict, ERR_NO_CHECKOUT, "payment relay rejected", err)
	default:
		respondWithErr(w, http.StatusBadRequest, ERR_PAYMENT_RESULT, "payment relay rejected", err)
	}
}

// handleEvents streams view updates. EventSource cannot set headers, so the
// token comes in the query string.
func handleEvents(state *ServerState, w http.ResponseWriter, r *http.Request) {
	formId := mux.Vars(r)["id"]
	tokenFormId, err := state.tokens.VerifyFormToken(r.URL.Query().Get("token"))
	if err != nil || tokenFormId != formId {
		respondWithErr(w, http.StatusUnauthorized, ERR_UNAUTHORIZED, "event stream rejected", err)
		return
	}
	if _, err := state.registry.Get(formId); err != nil {
		respondWithErr(w, http.StatusNotFound, ERR_FORM_NOT_FOUND, "event stream rejected", err)
		return
	}

	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("could not clear write deadline for event stream", "error", err)
	}
	state.events.ServeHTTP(w, r)
}

// authorizeForm checks the bearer token against the {id} path variable.
func authorizeForm(state *ServerState, w http.ResponseWriter, r *http.Request) (string, bool) {
	formId := mux.Vars(r)["id"]
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		respondWithErr(w, http.StatusUnauthorized, ERR_UNAUTHORIZED, "missing bearer token", nil)
		return "", false
	}
	tokenFormId, err := state.tokens.VerifyFormToken(strings.TrimSpace(token))
	if err != nil || tokenFormId != formId {
		respondWithErr(w, http.StatusUnauthorized, ERR_UNAUTHORIZED, "form token rejected", err)
		return "", false
	}
	return formId, true
}

func requireForm(state *ServerState, w http.ResponseWriter, r *http.Request) (*FormInstance, bool) {
	formId, ok := authorizeForm(state, w, r)
	if !ok {
		return nil, false
	}
	instance, err := state.registry.Get(formId)
	if err != nil {
		respondWithErr(w, http.StatusNotFound, ERR_FORM_NOT_FOUND, "unknown form", err)
		return nil, false
	}
	return instance, true
}

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	w.WriteHeader(code)
	if _, err := w.Write([]byte(responseBody)); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// helpers ------------

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		slog.Debug("Non-POST request rejected", "method", r.Method, "path", r.URL.Path)
		respondWithErr(w, http.StatusMethodNotAllowed, "method not allowed", "invalid method", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
	return nil
}
