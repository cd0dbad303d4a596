package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/cleared-dev/tally/internal/buildinfo"
	"github.com/cleared-dev/tally/internal/importlog"
	"github.com/cleared-dev/tally/internal/ingest"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/store"
)

const dateFormat = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

type accountJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type importJSON struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Checksum   string    `json:"checksum"`
	AccountID  string    `json:"account_id"`
	ImportedAt time.Time `json:"imported_at"`
	Completed  bool      `json:"completed"`
}

type transactionJSON struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	Amount         string `json:"amount"`
	Merchant       string `json:"merchant"`
	Category       string `json:"category,omitempty"`
	Note           string `json:"note,omitempty"`
	CustomCategory string `json:"custom_category,omitempty"`
	AccountID      string `json:"account_id"`
	ImportID       string `json:"import_id"`
	IsManual       bool   `json:"is_manual"`
}

// editRequest is the PATCH body. Absent fields are left alone.
type editRequest struct {
	Merchant *string `json:"merchant"`
	Category *string `json:"category"`
	Note     *string `json:"note"`
}

func toTransactionJSON(t model.StoredTransaction) transactionJSON {
	return transactionJSON{
		ID:             t.ID,
		Date:           t.Date.Format(dateFormat),
		Amount:         t.Amount.StringFixed(2),
		Merchant:       t.Merchant,
		Category:       t.Category,
		Note:           t.Note,
		CustomCategory: t.CustomCategory,
		AccountID:      t.AccountID,
		ImportID:       t.ImportID,
		IsManual:       t.IsManual,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildinfo.String()})
}

// importStatus maps an import failure to its HTTP status.
func importStatus(err error) int {
	switch ingest.KindOf(err) {
	case "":
		return http.StatusOK
	case ingest.KindDuplicateFile:
		return http.StatusConflict
	case ingest.KindUnsupportedInstitution, ingest.KindNoParser, ingest.KindParseFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the 10 MiB upload limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	filename := filepath.Base(header.Filename)
	res, err := s.importer.ImportFile(r.Context(), filename, content)
	s.audit(filename, res, err)
	s.writeJSON(w, importStatus(err), res)
}

func (s *Server) audit(filename string, res ingest.Result, err error) {
	if s.opts.RepoRoot == "" {
		return
	}
	entry := importlog.NewEntry(time.Now(), "http", filename, res, err)
	if err := importlog.Append(s.opts.RepoRoot, []importlog.Entry{entry}); err != nil {
		s.logger.Error("writing import log", "error", err)
	}
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListImports(r.Context())
	if err != nil {
		s.logger.Error("listing imports", "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not list imports")
		return
	}
	out := make([]importJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, importJSON(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.logger.Error("listing accounts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not list accounts")
		return
	}
	out := make([]accountJSON, 0, len(accts))
	for _, a := range accts {
		out = append(out, accountJSON{ID: a.ID, Name: a.Name, Type: string(a.Type), CreatedAt: a.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := ""
	if name := r.URL.Query().Get("account"); name != "" {
		acct, err := s.store.FindAccountByName(ctx, name)
		if err != nil {
			s.logger.Error("finding account", "account", name, "error", err)
			s.writeError(w, http.StatusInternalServerError, "could not list transactions")
			return
		}
		if acct == nil {
			s.writeError(w, http.StatusNotFound, "unknown account: "+name)
			return
		}
		accountID = acct.ID
	}

	txns, err := s.store.ListTransactions(ctx, accountID)
	if err != nil {
		s.logger.Error("listing transactions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not list transactions")
		return
	}
	out := make([]transactionJSON, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionJSON(t))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := mux.Vars(r)["id"]

	var req editRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Merchant == nil && req.Category == nil && req.Note == nil {
		s.writeError(w, http.StatusBadRequest, "nothing to edit")
		return
	}

	edit := model.TransactionEdit{Merchant: req.Merchant, Category: req.Category, Note: req.Note}
	txn, err := s.store.EditTransaction(r.Context(), txnID, edit)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		s.logger.Error("editing transaction", "id", txnID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not edit transaction")
		return
	}
	s.writeJSON(w, http.StatusOK, toTransactionJSON(*txn))
}
