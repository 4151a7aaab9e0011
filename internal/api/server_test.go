package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/blob"
	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/ingest"
	"github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/rag"
)

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []uuid.UUID
	err       error
}

func (f *fakeSubmitter) Submit(_ context.Context, id uuid.UUID) (ingest.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, id)
	return ingest.StatusProcessing, nil
}

type fakeQuerier struct {
	question string
	docIDs   []uuid.UUID
	k        int
	result   *rag.QueryResult
	err      error
}

func (f *fakeQuerier) ProcessUserQuery(_ context.Context, question string, docIDs []uuid.UUID, k int) (*rag.QueryResult, error) {
	f.question, f.docIDs, f.k = question, docIDs, k
	return f.result, f.err
}

type fakePages map[uuid.UUID][]documents.Page

func (f fakePages) Pages(_ context.Context, id uuid.UUID) ([]documents.Page, error) {
	pages, ok := f[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return pages, nil
}

type testServer struct {
	*httptest.Server
	docs    *db.SQLiteStore
	blobs   *blob.FS
	submit  *fakeSubmitter
	querier *fakeQuerier
	pages   fakePages
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	docs, err := db.NewSQLiteStore(filepath.Join(dir, "docsift.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	blobs, err := blob.New(filepath.Join(dir, "data"))
	require.NoError(t, err)

	ts := &testServer{
		docs:    docs,
		blobs:   blobs,
		submit:  &fakeSubmitter{},
		querier: &fakeQuerier{result: rag.EmptyResult()},
		pages:   fakePages{},
	}
	srv := New(Deps{
		Documents: docs,
		Blobs:     blobs,
		Ingest:    ts.submit,
		Query:     ts.querier,
		Pages:     ts.pages,
		TopK:      5,
		Log:       logger.Nop(),
	})
	ts.Server = httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func upload(t *testing.T, ts *testServer, name string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/v1/documents/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRootAndStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var root map[string]string
	decode(t, resp, &root)
	assert.NotEmpty(t, root["message"])

	resp, err = http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	var status map[string]string
	decode(t, resp, &status)
	assert.Equal(t, map[string]string{"status": "ok", "version": Version}, status)
}

func TestUpload_StoresAndSubmits(t *testing.T) {
	ts := newTestServer(t)
	content := []byte("%PDF-1.4 fake")

	resp := upload(t, ts, "Annual Report.PDF", content)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		ID       uuid.UUID `json:"id"`
		Filename string    `json:"filename"`
		Status   string    `json:"status"`
	}
	decode(t, resp, &out)
	assert.Equal(t, "Annual Report.PDF", out.Filename)
	assert.Equal(t, "processing", out.Status)
	assert.Equal(t, []uuid.UUID{out.ID}, ts.submit.submitted)

	doc, err := ts.docs.GetDocument(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, ".pdf", doc.FileType)
	assert.Equal(t, int64(len(content)), doc.FileSize)
	assert.True(t, strings.HasSuffix(doc.Filename, ".pdf"))
	assert.False(t, doc.IsProcessed)

	stored, err := os.ReadFile(doc.FilePath)
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestUpload_RejectsOtherTypes(t *testing.T) {
	ts := newTestServer(t)

	resp := upload(t, ts, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out errorResponse
	decode(t, resp, &out)
	assert.Contains(t, out.Error, ".pdf")
	assert.Empty(t, ts.submit.submitted)

	docs, err := ts.docs.GetAllDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpload_MissingFile(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/v1/documents/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocuments_ListAndGet(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/documents")
	require.NoError(t, err)
	var empty map[string][]db.Document
	decode(t, resp, &empty)
	assert.NotNil(t, empty["documents"])
	assert.Empty(t, empty["documents"])

	upload(t, ts, "a.pdf", []byte("a")).Body.Close()
	upload(t, ts, "b.pdf", []byte("b")).Body.Close()

	resp, err = http.Get(ts.URL + "/api/v1/documents")
	require.NoError(t, err)
	var list map[string][]db.Document
	decode(t, resp, &list)
	require.Len(t, list["documents"], 2)

	id := list["documents"][0].ID
	resp, err = http.Get(ts.URL + "/api/v1/documents/" + id.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc db.Document
	decode(t, resp, &doc)
	assert.Equal(t, id, doc.ID)

	resp, err = http.Get(ts.URL + "/api/v1/documents/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/documents/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessDocument(t *testing.T) {
	ts := newTestServer(t)
	resp := upload(t, ts, "a.pdf", []byte("a"))
	var up submitResponse
	decode(t, resp, &up)

	resp, err := http.Post(ts.URL+"/api/v1/documents/"+up.ID.String()+"/process", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out submitResponse
	decode(t, resp, &out)
	assert.Equal(t, up.ID, out.ID)
	assert.Equal(t, ingest.StatusProcessing, out.Status)
	assert.Len(t, ts.submit.submitted, 2)

	ts.submit.err = ingest.ErrAlreadyProcessing
	resp, err = http.Post(ts.URL+"/api/v1/documents/"+up.ID.String()+"/process", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/v1/documents/"+uuid.NewString()+"/process", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDocumentPages(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	ts.pages[id] = []documents.Page{{DocID: id.String(), Number: 1, Text: "first page"}}

	resp, err := http.Get(ts.URL + "/api/v1/documents/" + id.String() + "/pages")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string][]documents.Page
	decode(t, resp, &out)
	assert.Equal(t, ts.pages[id], out["pages"])

	resp, err = http.Get(ts.URL + "/api/v1/documents/" + uuid.NewString() + "/pages")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteNotImplemented(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/documents/"+uuid.NewString(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func postQuery(t *testing.T, ts *testServer, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/query", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestQuery(t *testing.T) {
	ts := newTestServer(t)
	ts.querier.result = &rag.QueryResult{
		DocumentResponses: map[string]rag.DocumentAnswer{
			"a.pdf": {Response: "answer", Citations: []rag.CitationRef{{Page: 1, Paragraph: 2}}},
		},
		Themes: []rag.Theme{{Theme: "T", Description: "D", Documents: []string{"a.pdf"}}},
	}

	resp := postQuery(t, ts, `{"question":"what?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out rag.QueryResult
	decode(t, resp, &out)
	assert.Equal(t, *ts.querier.result, out)
	assert.Equal(t, "what?", ts.querier.question)
	assert.Nil(t, ts.querier.docIDs, "absent document_ids means all documents")
	assert.Equal(t, 5, ts.querier.k)

	id := uuid.New()
	postQuery(t, ts, `{"question":"q","document_ids":["`+id.String()+`"],"k":2}`).Body.Close()
	assert.Equal(t, []uuid.UUID{id}, ts.querier.docIDs)
	assert.Equal(t, 2, ts.querier.k)

	postQuery(t, ts, `{"question":"q","document_ids":[]}`).Body.Close()
	assert.NotNil(t, ts.querier.docIDs)
	assert.Empty(t, ts.querier.docIDs)
}

func TestQuery_EmptyResultShape(t *testing.T) {
	ts := newTestServer(t)

	resp := postQuery(t, ts, `{"question":"anything"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `{}`, string(raw["document_responses"]))
	assert.JSONEq(t, `[]`, string(raw["themes"]))
}

func TestQuery_Errors(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{`{"question":""}`, `{"question":"   "}`, `not json`} {
		resp := postQuery(t, ts, body)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	ts.querier.err = assert.AnError
	resp := postQuery(t, ts, `{"question":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var out errorResponse
	decode(t, resp, &out)
	assert.Equal(t, assert.AnError.Error(), out.Error)
}
