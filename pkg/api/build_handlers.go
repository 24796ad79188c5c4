package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/artifacts"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/permission"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// BuildHandlers uploads and manages build files.
type BuildHandlers struct {
	builds   *artifacts.Service
	maxBytes int64
	g        *guards
}

// NewBuildHandlers creates the build handlers.
func NewBuildHandlers(builds *artifacts.Service, maxBytes int64, g *guards) *BuildHandlers {
	return &BuildHandlers{builds: builds, maxBytes: maxBytes, g: g}
}

// RegisterRoutes registers /builds routes.
func (h *BuildHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/builds", h.g.require(permission.BuildView, h.list)).Methods(http.MethodGet)
	router.Handle("/builds", h.g.require(permission.BuildUpload, h.upload, httputil.MaxBytesMiddleware(h.maxBytes))).Methods(http.MethodPost)
	router.Handle("/builds/{id:[0-9]+}", h.g.require(permission.BuildView, h.get)).Methods(http.MethodGet)
	router.Handle("/builds/{id:[0-9]+}", h.g.require(permission.BuildDelete, h.delete)).Methods(http.MethodDelete)
}

// upload handles POST /builds (multipart: file, name)
func (h *BuildHandlers) upload(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		httputil.WriteAppError(w, r, apperr.Wrap(apperr.KindBadRequest, err, "invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteAppError(w, r, apperr.BadRequest("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteAppError(w, r, apperr.Wrap(apperr.KindBadRequest, err, "failed to read upload"))
		return
	}

	build, err := h.builds.Upload(r.Context(), artifacts.UploadInput{
		OrganizationID: orgID,
		UploadedBy:     ac.UserID,
		Name:           r.FormValue("name"),
		FileName:       header.Filename,
		Data:           data,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, build)
}

// list handles GET /builds
func (h *BuildHandlers) list(w http.ResponseWriter, r *http.Request) {
	_, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	builds, err := h.builds.List(r.Context(), orgID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if builds == nil {
		builds = []*artifacts.Build{}
	}
	httputil.WriteSuccess(w, builds)
}

// get handles GET /builds/{id}
func (h *BuildHandlers) get(w http.ResponseWriter, r *http.Request) {
	_, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	build, err := h.builds.Get(r.Context(), orgID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, build)
}

// delete handles DELETE /builds/{id}
func (h *BuildHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.builds.Delete(r.Context(), orgID, ac.UserID, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
