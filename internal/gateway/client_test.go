package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ragchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testToken = "test-token"

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", opts...), &calls
}

func assertJSONHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
}

// =============================================================================
// HISTORY
// =============================================================================

func TestFetchHistory_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/history", r.URL.Path)
		assertJSONHeaders(t, r)
		_, _ = w.Write([]byte(`[
			{"role":"user","content":"hi"},
			{"role":"assistant","content":"hello","sources":[{"source":"a.pdf","page":3,"content":"snip"}]},
			{"role":"system","content":"ignored"}
		]`))
	})

	msgs := c.FetchHistory(context.Background(), testToken)

	require.Len(t, msgs, 2)
	assert.Equal(t, types.Message{Role: types.RoleUser, Content: "hi"}, msgs[0])
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, []types.Source{{DocumentName: "a.pdf", Page: 3, Snippet: "snip"}}, msgs[1].Sources)
}

func TestFetchHistory_NoTokenMakesNoCall(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.Empty(t, c.FetchHistory(context.Background(), ""))
	assert.Zero(t, calls.Load())
}

func TestFetchHistory_FailSoftAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithLogger(zap.New(core)))

	assert.Empty(t, c.FetchHistory(context.Background(), testToken))
	assert.NotZero(t, logs.FilterMessage("history unavailable, continuing with empty transcript").Len())
}

func TestFetchHistory_MalformedBodyIsFailSoft(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"`))
	})
	assert.Empty(t, c.FetchHistory(context.Background(), testToken))
}

// =============================================================================
// ASK
// =============================================================================

func TestSendQuery_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ask", r.URL.Path)
		assertJSONHeaders(t, r)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "What is the refund policy?", body["query"])

		_, _ = w.Write([]byte(`{"response":"30 days","sources":[{"source":"policy.pdf","page":2,"content":"..."}]}`))
	})

	ans, err := c.SendQuery(context.Background(), testToken, "What is the refund policy?")
	require.NoError(t, err)
	assert.Equal(t, "30 days", ans.Response)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, types.Source{DocumentName: "policy.pdf", Page: 2, Snippet: "..."}, ans.Sources[0])
}

func TestSendQuery_ServerDetail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"index unavailable"}`))
	})

	_, err := c.SendQuery(context.Background(), testToken, "q")
	require.Error(t, err)
	assert.Equal(t, "index unavailable", err.Error())
	assert.True(t, IsRequestError(err))
	assert.False(t, IsNetworkError(err))

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusInternalServerError, re.Status)
}

func TestSendQuery_GenericMessageWithoutDetail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := c.SendQuery(context.Background(), testToken, "q")
	require.Error(t, err)
	assert.Equal(t, "Failed to send message", err.Error())
}

func TestSendQuery_ValidationDetailArray(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail": [ {"loc": ["body","query"], "msg": "field required"} ]}`))
	})

	_, err := c.SendQuery(context.Background(), testToken, "q")
	require.Error(t, err)
	assert.Equal(t, `[{"loc":["body","query"],"msg":"field required"}]`, err.Error())
}

func TestSendQuery_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithAskTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.SendQuery(context.Background(), testToken, "q")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendQuery_Guards(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.SendQuery(context.Background(), "", "q")
	assert.ErrorIs(t, err, ErrAuthMissing)

	_, err = c.SendQuery(context.Background(), testToken, "   ")
	assert.ErrorIs(t, err, ErrEmptySelection)

	assert.Zero(t, calls.Load())
}

func TestSendQuery_UnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).SendQuery(context.Background(), testToken, "q")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

// =============================================================================
// FILES
// =============================================================================

func TestListFiles(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		assertJSONHeaders(t, r)
		_, _ = w.Write([]byte(`[
			{"id":"f-1","filename":"a.pdf","created_at":"2024-05-01T12:34:56.789012+00:00"},
			{"id":42,"filename":"b.txt","created_at":"2024-05-02T08:00:00"},
			{"id":"f-3","filename":"c.md","created_at":"garbage"}
		]`))
	})

	files := c.ListFiles(context.Background(), testToken)
	require.Len(t, files, 3)
	assert.Equal(t, "f-1", files[0].ID)
	assert.Equal(t, 2024, files[0].CreatedAt.Year())
	assert.Equal(t, "42", files[1].ID)
	assert.Equal(t, time.May, files[1].CreatedAt.Month())
	assert.True(t, files[2].CreatedAt.IsZero())
}

func TestListFiles_FailSoft(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.Empty(t, c.ListFiles(context.Background(), testToken))

	c2, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Empty(t, c2.ListFiles(context.Background(), ""))
	assert.Zero(t, calls.Load())
}

func TestUploadFiles_Multipart(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ingestfile", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		parts := r.MultipartForm.File["file_uploads"]
		if !assert.Len(t, parts, 2) {
			return
		}
		assert.Equal(t, "a.txt", parts[0].Filename)
		assert.Equal(t, "b.md", parts[1].Filename)

		f, err := parts[1].Open()
		if assert.NoError(t, err) {
			data, _ := io.ReadAll(f)
			assert.Equal(t, "# b", string(data))
		}

		_, _ = w.Write([]byte(`{"filenames":["a.txt","b.md"]}`))
	})

	err := c.UploadFiles(context.Background(), testToken, []types.FilePayload{
		types.PayloadFromBytes("a.txt", []byte("a")),
		types.PayloadFromBytes("b.md", []byte("# b")),
	})
	assert.NoError(t, err)
}

func TestUploadFiles_CustomField(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			assert.Len(t, r.MultipartForm.File["file"], 1)
		}
	}, WithUploadField("file"))

	require.NoError(t, c.UploadFiles(context.Background(), testToken,
		[]types.FilePayload{types.PayloadFromBytes("a.txt", []byte("a"))}))
}

func TestUploadFiles_Failures(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})
	ctx := context.Background()
	one := []types.FilePayload{types.PayloadFromBytes("a.txt", []byte("a"))}

	assert.ErrorIs(t, c.UploadFiles(ctx, testToken, nil), ErrEmptySelection)
	assert.ErrorIs(t, c.UploadFiles(ctx, "", one), ErrAuthMissing)
	assert.Zero(t, calls.Load())

	err := c.UploadFiles(ctx, testToken, one)
	require.Error(t, err)
	assert.True(t, IsRequestError(err))
	assert.Equal(t, "Upload failed. Server rejected the files.", err.Error())

	assert.Error(t, c.UploadFiles(ctx, testToken, []types.FilePayload{types.PayloadFromBytes("", []byte("x"))}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeleteFile(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assertJSONHeaders(t, r)
		switch r.URL.Path {
		case "/files/f-1":
			_, _ = w.Write([]byte(`{"message":"File and all associated vector chunks deleted successfully"}`))
		case "/files/missing":
			_, _ = w.Write([]byte(`{"error":"File not found or access denied"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	ctx := context.Background()

	assert.NoError(t, c.DeleteFile(ctx, testToken, "f-1"))

	err := c.DeleteFile(ctx, testToken, "missing")
	require.Error(t, err)
	assert.Equal(t, "File not found or access denied", err.Error())

	err = c.DeleteFile(ctx, testToken, "boom")
	require.Error(t, err)
	assert.True(t, IsRequestError(err))

	assert.ErrorIs(t, c.DeleteFile(ctx, "", "f-1"), ErrAuthMissing)
}

func TestBaseURLTrimmed(t *testing.T) {
	assert.Equal(t, "http://x", New("http://x///").BaseURL())
}
