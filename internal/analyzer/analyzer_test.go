package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/framegrab/internal/models"
)

type fakeModel struct {
	reply   string
	err     error
	prompt  string
	content []byte
	path    string
}

func (m *fakeModel) Ask(ctx context.Context, prompt, imagePath string) (string, error) {
	m.prompt = prompt
	m.path = imagePath
	m.content, _ = os.ReadFile(imagePath)
	return m.reply, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testImage() models.Image {
	return models.Image{
		Blob:     []byte("\x89PNG fake"),
		DataURL:  "data:image/png;base64,iVBORyBmYWtl",
		MIMEType: "image/png",
		Width:    4,
		Height:   2,
	}
}

func TestDescribeReturnsTrimmedReply(t *testing.T) {
	model := &fakeModel{reply: "  A rabbit stretches in a meadow.\n"}
	d := NewDescriber(model, "", discardLogger())

	got := d.Describe(context.Background(), testImage())
	assert.Equal(t, "A rabbit stretches in a meadow.", got)
	assert.Equal(t, DefaultPrompt, model.prompt)
	assert.Equal(t, []byte("\x89PNG fake"), model.content, "model reads the frame blob")

	_, err := os.Stat(model.path)
	assert.True(t, os.IsNotExist(err), "temp image is removed")
}

func TestDescribeEmptyReply(t *testing.T) {
	d := NewDescriber(&fakeModel{reply: "   "}, "", discardLogger())
	assert.Equal(t, NoDescription, d.Describe(context.Background(), testImage()))
}

func TestDescribeFailure(t *testing.T) {
	d := NewDescriber(&fakeModel{err: errors.New("connection refused")}, "", discardLogger())
	assert.Equal(t, ErrorText, d.Describe(context.Background(), testImage()))
}

func TestDescribeUsesDataURLWithoutBlob(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	d := NewDescriber(model, "custom prompt", discardLogger())

	img := testImage()
	img.Blob = nil
	assert.Equal(t, "ok", d.Describe(context.Background(), img))
	assert.Equal(t, "custom prompt", model.prompt)
	assert.Equal(t, []byte("\x89PNG fake"), model.content)
}

func TestDescribeMalformedImage(t *testing.T) {
	model := &fakeModel{reply: "never asked"}
	d := NewDescriber(model, "", discardLogger())

	got := d.Describe(context.Background(), models.Image{DataURL: "not a data url"})
	assert.Equal(t, ErrorText, got)
	assert.Empty(t, model.path)
}

func serverConfig(t *testing.T, srv *httptest.Server) AgentConfig {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return AgentConfig{BaseURL: u.Scheme + "://" + u.Hostname(), Port: port}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	cfg := serverConfig(t, srv)
	assert.NoError(t, checkHealth(context.Background(), cfg.endpoint()))
}

func TestNewAgentUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewAgent(context.Background(), serverConfig(t, srv), discardLogger())
	assert.ErrorIs(t, err, ErrUnavailable)

	srv.Close()
	_, err = NewAgent(context.Background(), serverConfig(t, srv), discardLogger())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAgentConfigDefaults(t *testing.T) {
	cfg := AgentConfig{}.withDefaults()
	assert.Equal(t, "http://localhost:11434", cfg.endpoint())
	assert.Equal(t, DefaultModel, cfg.Model)

	cfg = AgentConfig{BaseURL: "http://ollama/", Port: 8080, Model: "llava"}.withDefaults()
	assert.Equal(t, "http://ollama:8080", cfg.endpoint())
	assert.Equal(t, "llava", cfg.Model)
}
