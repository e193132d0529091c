package manager

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tthsd/internal/chunkdl"
	"tthsd/internal/session"
	"tthsd/internal/sink"
)

func testConfig(t *testing.T) *session.Config {
	t.Helper()
	content := []byte("hello world, this is a small deterministic body")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(content)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cfg, err := session.NewConfig([]chunkdl.Task{{
		URL:      server.URL,
		SavePath: filepath.Join(dir, "out.bin"),
	}}, 1, 1, "", sink.Noop{})
	require.NoError(t, err)
	return cfg
}

func TestCreateReturnsMonotonicHandles(t *testing.T) {
	m := New()
	h1 := m.Create(testConfig(t), false)
	h2 := m.Create(testConfig(t), false)

	assert.Equal(t, int64(1), h1)
	assert.Equal(t, int64(2), h2)
	assert.Equal(t, 2, m.Count())
}

func TestCreateRejectsNilConfig(t *testing.T) {
	m := New()
	assert.EqualValues(t, -1, m.Create(nil, false))
}

func TestStartPauseResumeStopRoundTrip(t *testing.T) {
	m := New()
	id := m.Create(testConfig(t), false)
	require.NotEqual(t, int64(-1), id)

	assert.Equal(t, codeOK, m.Start(id))
	assert.Equal(t, codeOK, m.Pause(id))
	assert.Equal(t, codeOK, m.Resume(id))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, codeOK, m.Stop(id))
	assert.Equal(t, 0, m.Count())
}

func TestOperationsOnUnknownHandleFail(t *testing.T) {
	m := New()
	assert.Equal(t, codeNoSession, m.Start(999))
	assert.Equal(t, codeNoSession, m.Pause(999))
	assert.Equal(t, codeNoSession, m.Resume(999))
	assert.Equal(t, codeNoSession, m.Stop(999))
}

func TestStopTwiceFailsSecondTime(t *testing.T) {
	m := New()
	id := m.Create(testConfig(t), true)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, codeOK, m.Stop(id))
	assert.Equal(t, codeNoSession, m.Stop(id))
}

func TestCreateWithStartImmediately(t *testing.T) {
	m := New()
	id := m.Create(testConfig(t), true)
	require.NotEqual(t, int64(-1), id)

	s, ok := m.Session(id)
	require.True(t, ok)
	assert.NotNil(t, s)
}
