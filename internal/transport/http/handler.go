package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"CourseEntries/internal/model"
	"CourseEntries/internal/permissions"
	"CourseEntries/internal/presenter"
	"CourseEntries/internal/service"
	"CourseEntries/pkg/apperrors"
)

// maxUploadSize ограничение размера загружаемого черновика
const maxUploadSize = 32 << 20

// EntryService бизнес-логика записей, используемая хендлером
type EntryService interface {
	Retrieve(ctx context.Context, id, courseID int64, strictness service.Strictness) (*model.Entry, error)
	Insert(ctx context.Context, in model.EntryInsert) (int64, error)
	Update(ctx context.Context, upd model.EntryUpdate) (*model.Entry, error)
	Delete(ctx context.Context, id int64) error
	ValidateForm(ctx context.Context, form model.EntryForm) (map[string]string, error)
}

// ListBuilder строит HTML-список записей курса
type ListBuilder interface {
	Build(ctx context.Context, courseID int64, page int, sort presenter.Sort, canEdit bool) (*presenter.EntriesList, error)
}

// Authorizer проверяет права пользователя в курсе
type Authorizer interface {
	Has(ctx context.Context, userID string, courseID int64, cap permissions.Capability) (bool, error)
	Require(ctx context.Context, userID string, courseID int64, cap permissions.Capability) error
}

// FileStore хранилище вложений описаний
type FileStore interface {
	UploadDraft(ctx context.Context, itemID, filename string, body io.Reader) (string, string, error)
	FileURL(ctx context.Context, courseID, entryID int64, filename string) (string, error)
	PrepareDraft(ctx context.Context, courseID, entryID int64, text string) (string, string, error)
}

// ReadinessCheck проверка зависимости для /readyz
type ReadinessCheck func(ctx context.Context) error

// Handler реализует HTTP-эндпоинты записей
type Handler struct {
	srv    EntryService
	list   ListBuilder
	auth   Authorizer
	files  FileStore
	checks map[string]ReadinessCheck
	log    *zap.Logger
}

// NewHandler создаёт HTTP Handler
func NewHandler(srv EntryService, list ListBuilder, auth Authorizer, files FileStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{srv: srv, list: list, auth: auth, files: files, checks: map[string]ReadinessCheck{}, log: log}
}

// AddReadinessCheck регистрирует проверку зависимости name
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// RegisterRoutes регистрирует маршруты API
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/readyz", h.Readyz).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/entries/list", h.List).Methods("GET")
	r.HandleFunc("/entry/get", h.Get).Methods("GET")
	r.HandleFunc("/entry/create", h.Create).Methods("POST")
	r.HandleFunc("/entry/update", h.Update).Methods("PATCH")
	r.HandleFunc("/entry/delete", h.Delete).Methods("POST")
	r.HandleFunc("/entry/file", h.File).Methods("GET")
	r.HandleFunc("/draftfile/upload", h.UploadDraft).Methods("POST")
	r.HandleFunc("/draftfile/prepare", h.PrepareDraft).Methods("POST")
}

// ErrorResponse модель ошибки API
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

// коды ErrorResponse.Code
const (
	codeInternal   = 1
	codeValidation = 2
	codeNotFound   = 3
	codeForbidden  = 4
)

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, ErrorResponse{codeValidation, msg, map[string]interface{}{}})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeError(w, http.StatusUnprocessableEntity, ErrorResponse{codeValidation, "validation failed", fields})
}

// writeAppError переводит ошибку сервиса в HTTP-ответ
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(appErr, apperrors.ErrValidation):
			if len(appErr.Fields) > 0 {
				writeFieldErrors(w, appErr.Fields)
				return
			}
			writeError(w, http.StatusBadRequest, ErrorResponse{codeValidation, appErr.Message, map[string]interface{}{}})
			return
		case errors.Is(appErr, apperrors.ErrNotFound):
			writeError(w, http.StatusNotFound, ErrorResponse{codeNotFound, "errors.common.notFound", map[string]interface{}{}})
			return
		case errors.Is(appErr, apperrors.ErrForbidden):
			writeError(w, http.StatusForbidden, ErrorResponse{codeForbidden, "errors.common.forbidden", map[string]interface{}{}})
			return
		}
	}
	h.log.Error("ошибка обработки запроса",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponse{codeInternal, "internal error", map[string]interface{}{}})
}

func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// List обрабатывает GET /entries/list?courseId=&page=&sort=&dir=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	courseID, ok := queryID(r, "courseId")
	if !ok {
		badRequest(w, "invalid courseId")
		return
	}
	user := UserFromContext(r.Context())
	if err := h.auth.Require(r.Context(), user, courseID, permissions.View); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	canEdit, err := h.auth.Has(r.Context(), user, courseID, permissions.Edit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	page := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	sort := presenter.Sort{
		Column: r.URL.Query().Get("sort"),
		Desc:   strings.EqualFold(r.URL.Query().Get("dir"), "desc"),
	}
	out, err := h.list.Build(r.Context(), courseID, page, sort, canEdit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// Get обрабатывает GET /entry/get?id=&courseId=
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	var courseID int64
	if r.URL.Query().Get("courseId") != "" {
		if courseID, ok = queryID(r, "courseId"); !ok {
			badRequest(w, "invalid courseId")
			return
		}
	}
	entry, err := h.srv.Retrieve(r.Context(), id, courseID, service.MustExist)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.auth.Require(r.Context(), UserFromContext(r.Context()), entry.CourseID, permissions.View); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// Create обрабатывает POST /entry/create
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.EntryInsert
	if err := decodeStrict(r, &in); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if in.CourseID <= 0 {
		badRequest(w, "entry data must contain courseId")
		return
	}
	if err := h.auth.Require(r.Context(), UserFromContext(r.Context()), in.CourseID, permissions.Edit); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	fields, err := h.srv.ValidateForm(r.Context(), model.EntryForm{CourseID: in.CourseID, Name: in.Name})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	id, err := h.srv.Insert(r.Context(), in)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
}

// Update обрабатывает PATCH /entry/update?id=
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	var upd model.EntryUpdate
	if err := decodeStrict(r, &upd); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if upd.ID != 0 && upd.ID != id {
		badRequest(w, "id in body does not match query")
		return
	}
	upd.ID = id
	current, err := h.srv.Retrieve(r.Context(), id, 0, service.MustExist)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.auth.Require(r.Context(), UserFromContext(r.Context()), current.CourseID, permissions.Edit); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if upd.Name != nil {
		fields, err := h.srv.ValidateForm(r.Context(), model.EntryForm{ID: id, CourseID: current.CourseID, Name: *upd.Name})
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		if len(fields) > 0 {
			writeFieldErrors(w, fields)
			return
		}
	}
	entry, err := h.srv.Update(r.Context(), upd)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// Delete обрабатывает POST /entry/delete {"id": N}.
// Запись ищется до проверки прав: курс берётся из неё.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeStrict(r, &req); err != nil || req.ID <= 0 {
		badRequest(w, "invalid id")
		return
	}
	entry, err := h.srv.Retrieve(r.Context(), req.ID, 0, service.MustExist)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.auth.Require(r.Context(), UserFromContext(r.Context()), entry.CourseID, permissions.Edit); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.srv.Delete(r.Context(), entry.ID); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "OK"})
}

// File обрабатывает GET /entry/file?id=&name= перенаправлением на подписанную ссылку
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		badRequest(w, "invalid name")
		return
	}
	entry, err := h.srv.Retrieve(r.Context(), id, 0, service.MustExist)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.auth.Require(r.Context(), UserFromContext(r.Context()), entry.CourseID, permissions.View); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	u, err := h.files.FileURL(r.Context(), entry.CourseID, entry.ID, name)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

// UploadDraft обрабатывает POST /draftfile/upload?itemId= (multipart, поле file)
func (h *Handler) UploadDraft(w http.ResponseWriter, r *http.Request) {
	if UserFromContext(r.Context()) == "" {
		h.writeAppError(w, r, apperrors.Forbidden("missing user identity"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		badRequest(w, "invalid multipart body")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file")
		return
	}
	defer file.Close()
	itemID, ref, err := h.files.UploadDraft(r.Context(), r.URL.Query().Get("itemId"), hdr.Filename, file)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"itemId": itemID, "url": ref})
}

// PrepareDraft обрабатывает POST /draftfile/prepare?id=: копирует файлы записи в новую
// черновую область и отдаёт текст описания для редактора
func (h *Handler) PrepareDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	entry, err := h.srv.Retrieve(r.Context(), id, 0, service.MustExist)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.auth.Require(r.Context(), UserFromContext(r.Context()), entry.CourseID, permissions.Edit); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	itemID, text, err := h.files.PrepareDraft(r.Context(), entry.CourseID, entry.ID, entry.Description)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, model.DescriptionDraft{ItemID: itemID, Text: text, Format: entry.DescriptionFormat})
}

// Healthz возвращает статус работы сервиса
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Readyz возвращает готовность сервиса: все зарегистрированные проверки должны пройти
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{codeInternal, "not ready", failed})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
