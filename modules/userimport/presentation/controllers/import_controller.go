package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/modules/userimport/presentation/controllers/dtos"
	"github.com/iota-uz/lms-admin/modules/userimport/presentation/mappers"
	"github.com/iota-uz/lms-admin/modules/userimport/services"
	"github.com/iota-uz/lms-admin/pkg/application"
	"github.com/iota-uz/lms-admin/pkg/composables"
	"github.com/iota-uz/lms-admin/pkg/httpapi"
	"github.com/iota-uz/lms-admin/pkg/middleware"
)

const multipartMemory = 8 << 20

type ImportControllerOptions struct {
	BasePath         string
	MaxUploadSize    int64
	DefaultDelimiter string
	DefaultEncoding  string
	ActorHeader      string
	ActorEmailHeader string
}

type ImportController struct {
	imports  *services.ImportService
	previews *services.PreviewStore
	opts     ImportControllerOptions
}

func NewImportController(app application.Application, opts ImportControllerOptions) application.Controller {
	if opts.BasePath == "" {
		opts.BasePath = "/userimport"
	}
	if opts.ActorHeader == "" {
		opts.ActorHeader = "X-Actor-Id"
	}
	if opts.DefaultDelimiter == "" {
		opts.DefaultDelimiter = "semicolon"
	}
	if opts.DefaultEncoding == "" {
		opts.DefaultEncoding = services.EncodingAuto
	}
	return &ImportController{
		imports:  app.Service(services.ImportService{}).(*services.ImportService),
		previews: app.Service(services.PreviewStore{}).(*services.PreviewStore),
		opts:     opts,
	}
}

func (c *ImportController) Key() string {
	return c.opts.BasePath
}

func (c *ImportController) Register(r *mux.Router) {
	router := r.PathPrefix(c.opts.BasePath).Subrouter()
	router.Use(middleware.ProvideActor(c.opts.ActorHeader))
	router.HandleFunc("/previews", c.Preview).Methods(http.MethodPost)
	router.HandleFunc("/previews/{id}/commit", c.Commit).Methods(http.MethodPost)
	router.HandleFunc("/previews/{id}/report", c.Report).Methods(http.MethodGet)
}

func (c *ImportController) Preview(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", err.Error(), nil)
		return
	}
	if c.opts.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, c.opts.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "USERIMPORT_FILE_TOO_LARGE",
				fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit), nil)
			return
		}
		writeAPIError(w, http.StatusBadRequest, "USERIMPORT_INVALID_FORM", "expected a multipart form", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "USERIMPORT_FILE_REQUIRED", "form field \"file\" is required", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "USERIMPORT_FILE_UNREADABLE", "could not read the uploaded file", nil)
		return
	}
	if len(data) > 0 && !isText(data) {
		writeAPIError(w, http.StatusUnsupportedMediaType, "USERIMPORT_NOT_TEXT",
			"the uploaded file is not a delimited text file", map[string]string{"detected": mimetype.Detect(data).String()})
		return
	}

	dto, err := composables.UseForm(&dtos.PreviewDTO{}, r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "USERIMPORT_INVALID_COURSE", "course must be a positive integer", nil)
		return
	}
	dto.Normalize(c.opts.DefaultDelimiter, c.opts.DefaultEncoding)
	if errs, ok := dto.Ok(); !ok {
		writeFormErrors(w, errs)
		return
	}

	p, err := c.imports.Preview(r.Context(), services.PreviewRequest{
		Name:       header.Filename,
		Data:       data,
		Delimiter:  dto.Delimiter,
		Encoding:   dto.Encoding,
		CourseID:   dto.Course,
		ActorID:    actorID,
		ActorEmail: strings.TrimSpace(r.Header.Get(c.opts.ActorEmailHeader)),
	})
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	expiresAt := c.previews.Put(p)
	_ = httpapi.WriteJSON(w, http.StatusCreated, mappers.PreviewToViewModel(p, expiresAt))
}

func (c *ImportController) Commit(w http.ResponseWriter, r *http.Request) {
	id, ok := previewID(w, r)
	if !ok {
		return
	}
	actorID, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, "ACTOR_REQUIRED", err.Error(), nil)
		return
	}
	p, err := c.previews.Get(id)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	if p.ActorID != actorID {
		writeAPIError(w, http.StatusForbidden, "USERIMPORT_FOREIGN_PREVIEW", "preview belongs to another user", nil)
		return
	}
	if _, err := c.previews.Claim(id); err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	res, err := c.imports.Commit(r.Context(), p)
	if err != nil {
		// A result means rows were applied; the preview must not be committed twice.
		c.previews.Complete(id, res)
		c.writeServiceError(w, r, err)
		return
	}
	c.previews.Complete(id, res)

	vm := mappers.CommitResultToViewModel(res)
	vm.ReportURL = fmt.Sprintf("%s/previews/%s/report", c.opts.BasePath, id)
	_ = httpapi.WriteJSON(w, http.StatusOK, vm)
}

func (c *ImportController) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := previewID(w, r)
	if !ok {
		return
	}
	p, res, err := c.previews.Result(id)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	body, name, contentType := res.Report, res.ReportName, "text/csv; charset=utf-8"
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "csv":
	case "xlsx":
		body, err = services.BuildXLSXReport(p.File, res.Lines)
		if err != nil {
			c.writeServiceError(w, r, err)
			return
		}
		name = strings.TrimSuffix(name, ".csv") + ".xlsx"
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		writeAPIError(w, http.StatusBadRequest, "USERIMPORT_INVALID_FORMAT", "format must be csv or xlsx", nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (c *ImportController) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *services.FatalError
	switch {
	case errors.As(err, &fe):
		writeAPIError(w, http.StatusUnprocessableEntity, services.ErrFatal.Code, fe.Diagnostic.Message, map[string]string{
			"diagnostic_code": string(fe.Diagnostic.Code),
		})
	case errors.Is(err, course.ErrCourseNotFound):
		writeAPIError(w, http.StatusNotFound, "USERIMPORT_COURSE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, services.ErrPreviewNotFound):
		_ = httpapi.WriteCodedError(w, http.StatusNotFound, err, "USERIMPORT_PREVIEW_NOT_FOUND")
	case errors.Is(err, services.ErrPreviewCommitted),
		errors.Is(err, services.ErrPreviewBusy),
		errors.Is(err, services.ErrNotCommitted):
		_ = httpapi.WriteCodedError(w, http.StatusConflict, err, "USERIMPORT_CONFLICT")
	default:
		composables.UseLogger(r.Context()).WithError(err).Error("userimport: request failed")
		writeAPIError(w, http.StatusInternalServerError, "USERIMPORT_INTERNAL", "internal error", nil)
	}
}

func writeAPIError(w http.ResponseWriter, status int, code, message string, meta map[string]string) {
	_ = httpapi.WriteError(w, status, code, message, meta)
}

func previewID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "USERIMPORT_INVALID_ID", "preview id must be a uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeFormErrors(w http.ResponseWriter, errs map[string]string) {
	code, msg := "USERIMPORT_INVALID_FORM", "invalid form"
	switch {
	case errs["Delimiter"] != "":
		code, msg = "USERIMPORT_INVALID_DELIMITER", "delimiter must be one of semicolon, comma, tab"
	case errs["Encoding"] != "":
		code, msg = "USERIMPORT_INVALID_ENCODING", "encoding must be one of auto, utf-8, iso-8859-1, windows-1250"
	case errs["Course"] != "":
		code, msg = "USERIMPORT_INVALID_COURSE", "course must be a positive integer"
	}
	writeAPIError(w, http.StatusBadRequest, code, msg, errs)
}

// isText accepts anything mimetype places under text/plain, csv and tsv included.
func isText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
