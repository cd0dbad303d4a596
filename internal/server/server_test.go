package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/importlog"
	"github.com/cleared-dev/tally/internal/ingest"
	"github.com/cleared-dev/tally/internal/store"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("../../testdata", name))
	require.NoError(t, err)
	return data
}

type testEnv struct {
	store   *store.MemoryStore
	handler http.Handler
	root    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := store.NewMemoryStore()
	registry := importer.NewDefaultRegistry(category.Default(), importer.Options{VenmoOwner: "John Doe"})
	root := t.TempDir()
	srv := New(ingest.NewCoordinator(s, registry, nil), s, Options{
		RepoRoot:       root,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, nil)
	return &testEnv{store: s, handler: srv.Handler(), root: root}
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) ingest.Result {
	t.Helper()
	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestImport_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "file", "CIT.csv", readFixture(t, "CIT.csv")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	res := decodeResult(t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, 10, res.ImportedCount)
	assert.Equal(t, "Successfully imported 10 transactions. 0 duplicates skipped.", res.Message)

	entries, err := importlog.Read(env.root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "http", entries[0].Source)
	assert.Equal(t, importlog.StatusImported, entries[0].Status)
}

func TestImport_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		want     int
		message  string
	}{
		{"unsupported", "statement.csv", []byte("a,b\n"), http.StatusUnprocessableEntity, "Unsupported institution for file: statement.csv"},
		{"parse failure", "Vanguard.ofx", []byte("not ofx"), http.StatusUnprocessableEntity, "Import failed: could not read file."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(uploadRequest(t, "file", tt.filename, tt.content))
			assert.Equal(t, tt.want, rec.Code)
			res := decodeResult(t, rec)
			assert.False(t, res.Success)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestImport_DuplicateIsConflict(t *testing.T) {
	env := newTestEnv(t)
	content := readFixture(t, "Bilt.csv")

	require.Equal(t, http.StatusOK, env.do(uploadRequest(t, "file", "Bilt.csv", content)).Code)

	rec := env.do(uploadRequest(t, "file", "Bilt.csv", content))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "This file has already been imported.", decodeResult(t, rec).Message)
}

func TestImport_UsesBaseName(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "file", "../../exports/CIT.csv", readFixture(t, "CIT.csv")))
	require.Equal(t, http.StatusOK, rec.Code)

	recs, err := env.store.ListImports(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "CIT.csv", recs[0].Filename)
}

func TestImport_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "upload", "CIT.csv", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
}

func TestImport_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	big := bytes.Repeat([]byte("a"), MaxUploadSize+1024)

	rec := env.do(uploadRequest(t, "file", "CIT.csv", big))
	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)

	recs, err := env.store.ListImports(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type failingImporter struct{}

func (failingImporter) ImportFile(context.Context, string, []byte) (ingest.Result, error) {
	return ingest.Result{Message: "Import failed: could not save transactions."},
		&ingest.Error{Kind: ingest.KindPersistence, Stage: ingest.StageMerging, Cause: errors.New("disk full")}
}

func TestImport_PersistenceErrorIs500(t *testing.T) {
	s := store.NewMemoryStore()
	srv := New(failingImporter{}, s, Options{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "file", "CIT.csv", []byte("x")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(uploadRequest(t, "file", "CIT.csv", readFixture(t, "CIT.csv"))).Code)
	require.Equal(t, http.StatusOK, env.do(uploadRequest(t, "file", "Bilt.csv", readFixture(t, "Bilt.csv"))).Code)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []transactionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 13)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/transactions?account=Bilt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var bilt []transactionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bilt))
	require.Len(t, bilt, 3)
	for _, txn := range bilt {
		assert.Regexp(t, `^-?\d+\.\d{2}$`, txn.Amount)
		_, err := time.Parse(dateFormat, txn.Date)
		assert.NoError(t, err)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/transactions?account=Nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListImportsAndAccounts(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(uploadRequest(t, "file", "CIT.csv", readFixture(t, "CIT.csv"))).Code)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var imports []importJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imports))
	require.Len(t, imports, 1)
	assert.Equal(t, "CIT.csv", imports[0].Filename)
	assert.Len(t, imports[0].Checksum, 64)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var accts []accountJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accts))
	require.Len(t, accts, 1)
	assert.Equal(t, "CIT", accts[0].Name)
	assert.Equal(t, "bank", accts[0].Type)
}

func TestEditTransaction(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(uploadRequest(t, "file", "Amex Gold.csv", readFixture(t, "Amex Gold.csv"))).Code)

	body := strings.NewReader(`{"category":"Gifts","note":"birthday"}`)
	rec := env.do(httptest.NewRequest(http.MethodPatch, "/api/transactions/320240980880914392", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var got transactionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Gifts", got.Category)
	assert.Equal(t, "birthday", got.Note)
	assert.True(t, got.IsManual)

	stored, err := env.store.FindTransaction(context.Background(), "320240980880914392")
	require.NoError(t, err)
	assert.True(t, stored.IsManual)
}

func TestEditTransaction_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not found", `{"note":"x"}`, http.StatusNotFound},
		{"invalid json", `{"note":`, http.StatusBadRequest},
		{"unknown field", `{"amount":"1.00"}`, http.StatusBadRequest},
		{"empty edit", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodPatch, "/api/transactions/missing", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHealthAndRouting(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, health["version"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/import", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := env.do(req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = env.do(req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv := New(failingImporter{}, store.NewMemoryStore(), Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
