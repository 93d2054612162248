package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aboutme/cards/internal/auth"
	"github.com/aboutme/cards/internal/directory"
	"github.com/aboutme/cards/internal/importer"
	"github.com/aboutme/cards/internal/listing"
	"github.com/aboutme/cards/internal/profile"
)

const maxJSONBodySize = 1 << 20 // 1MB

// --- Own profile ---

func handleGetMyProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Directory.MyProfile(r.Context(), auth.UserID(r.Context()))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePutMyProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var p profile.Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		saved, err := deps.Directory.UpdateProfile(r.Context(), auth.UserID(r.Context()), p)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// handleImportProfile accepts a PDF either as the raw request body or as
// the "file" field of a multipart form.
func handleImportProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, importer.MaxDocumentSize+(1<<20))
		defer r.Body.Close()

		data, err := readUpload(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "document exceeds %d bytes", importer.MaxDocumentSize)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading document: %v", err)
			return
		}
		if len(data) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document is empty")
			return
		}
		if len(data) > importer.MaxDocumentSize {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "document exceeds %d bytes", importer.MaxDocumentSize)
			return
		}

		text, err := importer.ExtractBytes(data)
		if err != nil {
			if errors.Is(err, importer.ErrNoText) {
				serviceError(w, deps.Logger, err)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "could not read PDF: %v", err)
			return
		}

		res, err := deps.Directory.ImportSkills(r.Context(), auth.UserID(r.Context()), text)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// --- Organizations ---

func handleListOrgs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgs, err := deps.Directory.ListOrganizations(r.Context(), auth.UserID(r.Context()))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
	}
}

type createOrgRequest struct {
	Name string `json:"name"`
}

func handleCreateOrg(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req createOrgRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		org, err := deps.Directory.CreateOrganization(r.Context(), auth.UserID(r.Context()), req.Name)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, org)
	}
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func handleAddMember(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req addMemberRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		orgID := chi.URLParam(r, "orgID")
		if err := deps.Directory.AddMember(r.Context(), auth.UserID(r.Context()), orgID, req.UserID, req.Role); err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRemoveMember(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := chi.URLParam(r, "orgID")
		userID := chi.URLParam(r, "userID")
		if err := deps.Directory.RemoveMember(r.Context(), auth.UserID(r.Context()), orgID, userID); err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- Directory ---

func handleBrowse(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseBrowseQuery(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		res, err := deps.Directory.Browse(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "orgID"), q)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func parseBrowseQuery(r *http.Request) (directory.BrowseQuery, error) {
	v := r.URL.Query()

	field, err := listing.ParseField(v.Get("sort"))
	if err != nil {
		return directory.BrowseQuery{}, err
	}
	dir, err := listing.ParseDirection(v.Get("dir"))
	if err != nil {
		return directory.BrowseQuery{}, err
	}
	offset, err := intParam(v.Get("offset"), "offset")
	if err != nil {
		return directory.BrowseQuery{}, err
	}
	limit, err := intParam(v.Get("limit"), "limit")
	if err != nil {
		return directory.BrowseQuery{}, err
	}

	return directory.BrowseQuery{
		Criteria: listing.Criteria{
			SearchTerm: v.Get("q"),
			Skills:     splitList(v.Get("skills")),
			Teams:      splitList(v.Get("teams")),
		},
		Field:     field,
		Direction: dir,
		Offset:    offset,
		Limit:     limit,
	}, nil
}

func handleGetCard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := deps.Directory.GetCard(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "orgID"), chi.URLParam(r, "userID"))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

type compareRequest struct {
	IDs []string `json:"ids"`
}

func handleCompare(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		defer r.Body.Close()

		var req compareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Directory.Compare(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "orgID"), req.IDs)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSkillGraph(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		top, err := intParam(r.URL.Query().Get("top"), "top")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		res, err := deps.Directory.SkillGraph(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "orgID"), top)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
