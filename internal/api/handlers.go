package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certledger/certverify/internal/auth"
	"github.com/certledger/certverify/internal/extract"
	"github.com/certledger/certverify/internal/model"
	"github.com/certledger/certverify/internal/parse"
	"github.com/certledger/certverify/internal/verify"
)

// upload is a decoded multipart document.
type upload struct {
	data     []byte
	fileName string
	fileExt  string
	kind     extract.MediaKind
}

// readUpload pulls the "file" part out of a multipart request, enforcing the
// configured size limit and the supported extension set.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "missing file upload")
		return nil, false
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	kind, ok := extract.KindForExt(ext)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported file type")
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read file upload")
		return nil, false
	}

	return &upload{data: data, fileName: header.Filename, fileExt: ext, kind: kind}, true
}

// handleOCR runs extraction only and returns the raw text alongside the
// fields the heuristic parser recovered from it.
func (h *Handler) handleOCR(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res, err := h.extractor.Extract(r.Context(), up.data, up.kind)
	if err != nil {
		h.extractionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		extract.Result
		Fields parse.ParsedFields `json:"fields"`
	}{Result: res, Fields: parse.Fields(res.Text)})
}

// verifyRequest is the JSON body accepted by the verify endpoint when no
// document is uploaded.
type verifyRequest struct {
	CertificateID string `json:"certificate_id"`
	Name          string `json:"name"`
	RollNumber    string `json:"roll_number"`
	Course        string `json:"course"`
	FileHash      string `json:"file_hash"`
	CodePayload   string `json:"code_payload"`
}

// handleVerify accepts either a multipart document upload (optionally with
// form fields overriding what the document yields) or a JSON body of fields,
// and returns the verdict.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in verify.Input

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		up, ok := h.readUpload(w, r)
		if !ok {
			return
		}
		in = verify.Input{
			Data:          up.data,
			Kind:          up.kind,
			CertificateID: r.FormValue("certificate_id"),
			Name:          r.FormValue("name"),
			RollNumber:    r.FormValue("roll_number"),
			Course:        r.FormValue("course"),
			CodePayload:   r.FormValue("code_payload"),
		}
	} else {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		in = verify.Input{
			CertificateID: req.CertificateID,
			Name:          req.Name,
			RollNumber:    req.RollNumber,
			Course:        req.Course,
			FileHash:      req.FileHash,
			CodePayload:   req.CodePayload,
		}
	}

	verdict, err := h.verifier.Verify(r.Context(), in)
	if err != nil {
		if isExtractionError(err) {
			h.extractionError(w, err)
			return
		}
		zap.L().Error("verification failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	h.logEvent(r, model.VerificationLog{
		Type:          "verification",
		CertificateID: recordID(verdict.Record, in.CertificateID),
		FileHash:      verdict.ObservedFileHash,
		Verdict:       string(verdict.Verdict),
		MatchedBy:     string(verdict.MatchedBy),
	})

	writeJSON(w, http.StatusOK, verdict)
}

// handleRegister registers or updates one certificate record from form
// fields plus an optional document. With auto_ocr set, fields absent from
// the form are filled from the document text.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	admin, _ := auth.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	in := model.RecordInput{
		CertificateID: r.FormValue("certificate_id"),
		Name:          formPtr(r, "name"),
		RollNumber:    formPtr(r, "roll_number"),
		Course:        formPtr(r, "course"),
		IssueDate:     formPtr(r, "issue_date"),
		Issuer:        formPtr(r, "issuer"),
		IssuerID:      formPtr(r, "issuer_id"),
	}

	var docText string
	if file, header, err := r.FormFile("file"); err == nil {
		data, rerr := io.ReadAll(file)
		file.Close()
		if rerr != nil {
			writeError(w, http.StatusBadRequest, "read file upload")
			return
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
		kind, ok := extract.KindForExt(ext)
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported file type")
			return
		}

		hash := verify.FileHash(data)
		in.FileHash = &hash
		in.FileName = &header.Filename
		in.FileExt = &ext

		if parseBool(r.FormValue("auto_ocr")) {
			res, xerr := h.extractor.Extract(r.Context(), data, kind)
			if xerr != nil {
				h.extractionError(w, xerr)
				return
			}
			docText = res.Text
		}
	}

	if docText != "" {
		fields := parse.Fields(docText)
		if in.CertificateID == "" && fields.CertificateID != nil {
			in.CertificateID = *fields.CertificateID
		}
		if in.Name == nil {
			in.Name = fields.Name
		}
		if in.RollNumber == nil {
			in.RollNumber = fields.RollNumber
		}
		if in.Course == nil {
			in.Course = fields.Course
		}
	}

	stampIssuer(&in, admin)

	inserted, rec, err := h.store.Upsert(r.Context(), in)
	if err != nil {
		zap.L().Error("registration failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.logEvent(r, model.VerificationLog{
		Type:          "registration",
		CertificateID: rec.CertificateID,
		FileHash:      rec.FileHash,
		AdminRole:     admin.Role,
		IssuerID:      admin.IssuerID,
		Inserted:      inserted,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"inserted": inserted,
		"record":   rec,
	})
}

// importRequest is the bulk import body. A bare JSON array is also accepted.
type importRequest struct {
	Records []model.RecordInput `json:"records"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	admin, _ := auth.FromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}

	var req importRequest
	if jerr := json.Unmarshal(body, &req); jerr != nil {
		if jerr = json.Unmarshal(body, &req.Records); jerr != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "no records supplied")
		return
	}

	for i := range req.Records {
		stampIssuer(&req.Records[i], admin)
	}

	summary, err := h.store.ImportMany(r.Context(), req.Records)
	if err != nil {
		zap.L().Error("import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"summary": summary,
	})
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	items, total, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		zap.L().Error("list records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list records failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"items":   items,
		"total":   total,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		zap.L().Error("stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

// logEvent appends an audit entry; failures are logged and never surfaced
// to the client.
func (h *Handler) logEvent(r *http.Request, entry model.VerificationLog) {
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()
	if err := h.store.LogVerification(r.Context(), entry); err != nil {
		zap.L().Error("audit log write failed", zap.Error(err))
	}
}

// extractionError maps fatal extraction failures to 422 in the extraction
// result shape.
func (h *Handler) extractionError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, extract.Failure(err))
}

func isExtractionError(err error) bool {
	return errors.Is(err, extract.ErrUnreadableImage) || errors.Is(err, extract.ErrNoPages)
}

// stampIssuer forces issuer-scoped admins onto their own issuer id.
func stampIssuer(in *model.RecordInput, admin auth.Admin) {
	if admin.IssuerID != "" && admin.IssuerID != "*" {
		id := admin.IssuerID
		in.IssuerID = &id
	}
}

func recordID(rec *model.CertificateRecord, fallback string) string {
	if rec != nil {
		return rec.CertificateID
	}
	return fallback
}

// formPtr returns the form value as a pointer, nil when absent or empty.
func formPtr(r *http.Request, key string) *string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return &v
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
