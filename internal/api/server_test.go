package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/middleware"
	"github.com/rsv-seq-eqa/eqa-server/internal/notify"
	"github.com/rsv-seq-eqa/eqa-server/internal/report"
	"github.com/rsv-seq-eqa/eqa-server/internal/store"
	"github.com/rsv-seq-eqa/eqa-server/internal/upload"
)

const nextcladeHeader = "seqName\tclade\tG_clade\tqc.overallScore\tcoverage\ttotalMissing\talignmentStart\talignmentEnd\ttotalSubstitutions\ttotalDeletions\ttotalInsertions\ttotalFrameShifts\n"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func writeFixtureFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeLab(t *testing.T, distDir, lab, sample string, coverage float64, missing, alignEnd int, clade string, depth float64) {
	t.Helper()
	base := filepath.Join(lab, sample)
	writeFixtureFile(t, distDir, filepath.Join(base, "genomeLength.txt"), "10000")
	writeFixtureFile(t, distDir, filepath.Join(base, "nextclade.output"),
		nextcladeHeader+fmt.Sprintf("%s_%s\t%s\tG%s\t5.0\t%g\t%d\t0\t%d\t0\t0\t0\t0\n",
			lab, sample, clade, clade, coverage, missing, alignEnd))
	writeFixtureFile(t, distDir, filepath.Join(base, "genome_results.txt"), fmt.Sprintf(`>>>>>>> Coverage

     There is a 95.0%% of reference with a coverageData >= 20X
     mean coverageData = %gX
     std coverageData = 1.0X
`, depth))
	writeFixtureFile(t, distDir, filepath.Join(base, "raw_data_qualimapReport/coverage_histogram.txt"),
		fmt.Sprintf("#coverage\tlocations\n%g\t100.0\n", depth))
}

type serverFixture struct {
	server  *Server
	store   *store.SQLiteStore
	dataDir string
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	dataDir := t.TempDir()
	distDir := filepath.Join(dataDir, "D1")
	writeFixtureFile(t, distDir, "samples.txt", "S1 EPI_ISL_1653999\n")
	writeLab(t, distDir, "9999", "S1", 0.99, 10, 9960, "B.1", 120)
	writeLab(t, distDir, "1234", "S1", 0.92, 100, 9700, "B.1", 60)
	writeLab(t, distDir, "5678", "S1", 0.85, 150, 9550, "B.2", 40)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "eqa.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	for _, name := range []string{"1234", "5678"} {
		_, err := st.CreateOrganization(t.Context(), name)
		require.NoError(t, err)
	}

	logger := testLogger()
	reports := report.NewService(dataDir, st, logger)
	hub, err := notify.NewHub(16, nil, logger)
	require.NoError(t, err)
	go hub.Run(t.Context())
	uploads := upload.NewService(st, hub, logger)

	cfg := domain.Config{
		Server: domain.ServerConfig{
			RatePerSecond:  100,
			RateBurst:      200,
			MaxUploadBytes: 8 << 20,
		},
		Logging: domain.LoggingConfig{Level: "info"},
	}

	return &serverFixture{
		server:  NewServer(cfg, reports, st, hub, uploads, logger),
		store:   st,
		dataDir: dataDir,
	}
}

func (f *serverFixture) request(t *testing.T, method, path string, body *bytes.Buffer, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func userHeaders(org string) map[string]string {
	return map[string]string{middleware.HeaderOrganization: org}
}

func superuserHeaders() map[string]string {
	return map[string]string{
		middleware.HeaderOrganization: "admin",
		middleware.HeaderRole:         string(domain.RoleSuperuser),
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newTestServer(t)
	rec := f.request(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestIdentityRequired(t *testing.T) {
	f := newTestServer(t)
	rec := f.request(t, http.MethodGet, "/api/distributions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
}

func TestListDistributions(t *testing.T) {
	f := newTestServer(t)
	rec := f.request(t, http.MethodGet, "/api/distributions", nil, userHeaders("1234"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Distributions []string `json:"distributions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"D1"}, body.Distributions)
}

func TestParticipation(t *testing.T) {
	f := newTestServer(t)
	rec := f.request(t, http.MethodGet, "/api/distributions/D1/samples", nil, userHeaders("1234"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]domain.Participation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "S1")
	assert.Equal(t, 3, body["S1"].Participants)
	assert.Equal(t, domain.ReferenceAccessionB, body["S1"].ReferenceAccession)

	rec = f.request(t, http.MethodGet, "/api/distributions/nope/samples", nil, userHeaders("1234"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSampleDetailProjection(t *testing.T) {
	f := newTestServer(t)
	rec := f.request(t, http.MethodGet, "/api/distribution_data/D1/sample/S1", nil, userHeaders("1234"))
	require.Equal(t, http.StatusOK, rec.Code)

	var view domain.SampleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Rows, 3)
	assert.Equal(t, "1234", view.Rows[0].Participant)
	assert.Equal(t, "Others (1)", view.Rows[1].Participant)
	assert.Equal(t, domain.ReferenceRowLabel, view.Rows[2].Participant)

	// Superuser sees every lab by name.
	rec = f.request(t, http.MethodGet, "/api/distribution_data/D1/sample/S1", nil, superuserHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Rows, 3)
	assert.Equal(t, "1234", view.Rows[0].Participant)
	assert.Equal(t, "5678", view.Rows[1].Participant)
	assert.Equal(t, "9999", view.Rows[2].Participant)
}

func TestSampleDetailNoSubmission(t *testing.T) {
	f := newTestServer(t)
	rec := f.request(t, http.MethodGet, "/api/distribution_data/D1/sample/S1", nil, userHeaders("0000"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_SUBMISSION")
}

func TestDistributionReportEndpoint(t *testing.T) {
	f := newTestServer(t)
	rec := f.request(t, http.MethodGet, "/api/distribution_data/D1", nil, userHeaders("1234"))
	require.Equal(t, http.StatusOK, rec.Code)

	var rep domain.DistributionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "D1", rep.Distribution)
	require.Len(t, rep.Samples, 1)
	require.Len(t, rep.Evaluation.Subtyping, 1)
	assert.Equal(t, domain.VerdictPass, rep.Evaluation.Subtyping[0].Verdict)
}

func TestReportDownloadUserAndSuperuser(t *testing.T) {
	f := newTestServer(t)

	rec := f.request(t, http.MethodGet, "/api/distributions/D1/report", nil, userHeaders("1234"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "1234_D1_report.json")
	assert.Contains(t, rec.Body.String(), "Sample S1")

	rec = f.request(t, http.MethodGet, "/api/distributions/D1/report", nil, superuserHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "D1_reports.zip")
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
}

func TestArtifactDownloadAuthorization(t *testing.T) {
	f := newTestServer(t)

	// Stage a downloadable artifact for lab 1234.
	writeFixtureFile(t, filepath.Join(f.dataDir, "D1"),
		filepath.Join("1234", "S1", "1234_S1_consensus.bam"), "bamdata")

	rec := f.request(t, http.MethodGet, "/api/distributions/D1/sample/S1/download/1234/1234_S1_consensus.bam", nil, userHeaders("1234"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bamdata", rec.Body.String())

	// Another lab's artifact is off limits.
	rec = f.request(t, http.MethodGet, "/api/distributions/D1/sample/S1/download/1234/1234_S1_consensus.bam", nil, userHeaders("5678"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Missing file maps to 404.
	rec = f.request(t, http.MethodGet, "/api/distributions/D1/sample/S1/download/1234/1234_S1.bw", nil, userHeaders("1234"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown suffix is rejected.
	rec = f.request(t, http.MethodGet, "/api/distributions/D1/sample/S1/download/1234/notes.txt", nil, userHeaders("1234"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadEndpoint(t *testing.T) {
	f := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("distribution", "D1"))
	require.NoError(t, writer.WriteField("sample", "S1"))
	require.NoError(t, writer.WriteField("sequencing_type", "Illumina"))
	part, err := writer.CreateFormFile("files", "1234_S1.fasta")
	require.NoError(t, err)
	_, err = part.Write([]byte(">S1\nACGTACGT\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	headers := userHeaders("1234")
	headers["Content-Type"] = writer.FormDataContentType()
	rec := f.request(t, http.MethodPost, "/api/upload", &buf, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	subs, err := f.store.ListSubmissions(t.Context(), "D1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Illumina", subs[0].SequencingType)
}

func TestUploadRejectsBadFile(t *testing.T) {
	f := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("distribution", "D1"))
	require.NoError(t, writer.WriteField("sample", "S1"))
	part, err := writer.CreateFormFile("files", "fake.bam")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a bam file"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	headers := userHeaders("1234")
	headers["Content-Type"] = writer.FormDataContentType()
	rec := f.request(t, http.MethodPost, "/api/upload", &buf, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPLOAD_REJECTED")
}

func TestNotificationLifecycle(t *testing.T) {
	f := newTestServer(t)

	// Only the superuser may create notifications.
	body := bytes.NewBufferString(`{"user_email":"lab@example.org","message":"Report available"}`)
	rec := f.request(t, http.MethodPost, "/api/notifications", body, userHeaders("1234"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body = bytes.NewBufferString(`{"user_email":"lab@example.org","message":"Report available"}`)
	rec = f.request(t, http.MethodPost, "/api/notifications", body, superuserHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	headers := userHeaders("1234")
	headers[middleware.HeaderEmail] = "lab@example.org"
	rec = f.request(t, http.MethodGet, "/api/notifications", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Report available")

	rec = f.request(t, http.MethodPost, "/api/notifications/dismiss", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/notifications", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"notifications":[]`)
}
