package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/quantport/brokerlink/internal/auth"
	"github.com/quantport/brokerlink/internal/broker"
)

func TestGetDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/0/public/Time", r.URL.Path)
		require.Equal(t, "v", r.URL.Query().Get("k"))
		w.Write([]byte(`{"answer": 42}`))
	}))
	defer srv.Close()

	client := New("testvenue", srv.URL, nil)

	var out struct {
		Answer int `json:"answer"`
	}
	query := url.Values{}
	query.Set("k", "v")
	require.NoError(t, client.Get(context.Background(), "/0/public/Time", query, &out))
	require.Equal(t, 42, out.Answer)
}

func TestAuthStatusMapsToErrAuth(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		client := New("testvenue", srv.URL, nil)
		err := client.Get(context.Background(), "/whoami", nil, nil)
		require.Error(t, err)
		require.True(t, errors.Is(err, broker.ErrAuth), "status %d should map to ErrAuth", code)

		var verr *broker.VenueError
		require.True(t, errors.As(err, &verr))
		require.Equal(t, code, verr.StatusCode)
		srv.Close()
	}
}

func TestServerErrorMapsToErrTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New("testvenue", srv.URL, nil)
	err := client.Get(context.Background(), "/boom", nil, nil)
	require.True(t, errors.Is(err, broker.ErrTransport))
	require.False(t, errors.Is(err, broker.ErrAuth))
}

func TestNetworkErrorMapsToErrTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := New("testvenue", srv.URL, nil)
	err := client.Get(context.Background(), "/anything", nil, nil)
	require.True(t, errors.Is(err, broker.ErrTransport))
}

func TestTimeoutBoundsSlowVenue(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := New("testvenue", srv.URL, nil, WithTimeout(50*time.Millisecond))

	start := time.Now()
	err := client.Get(context.Background(), "/slow", nil, nil)
	require.True(t, errors.Is(err, broker.ErrTransport))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestPostFormSendsSignedBody(t *testing.T) {
	var gotAuth string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotBody = r.PostForm.Encode()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New("testvenue", srv.URL, nil)
	signer, err := auth.NewBearerSigner("tok")
	require.NoError(t, err)

	form := url.Values{}
	form.Set("pair", "XXBTZUSD")
	require.NoError(t, client.PostForm(context.Background(), "/0/private/Balance", form, signer, nil))
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "pair=XXBTZUSD", gotBody)
}

func TestDeleteUsesMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Write([]byte(`{"msg":"ok"}`))
	}))
	defer srv.Close()

	client := New("testvenue", srv.URL, nil)
	require.NoError(t, client.Delete(context.Background(), "/order/1", auth.None{}, nil))
	require.Equal(t, http.MethodDelete, gotMethod)
}
