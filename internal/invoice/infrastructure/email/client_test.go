package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-invoicing/internal/invoice/domain"
)

func TestSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoicing", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	err := c.Send(context.Background(), domain.Message{
		To:        "aino@example.com",
		Subject:   "Invoice #42",
		Body:      "<p>Hello</p>",
		PDFBase64: "data:application/pdf;base64,AAAA",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"to":        "aino@example.com",
		"subject":   "Invoice #42",
		"body":      "<p>Hello</p>",
		"pdfBase64": "data:application/pdf;base64,AAAA",
	}, got)
}

func TestSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).Send(context.Background(), domain.Message{To: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "mailbox full")
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, 20*time.Millisecond).Send(context.Background(), domain.Message{})
	assert.Error(t, err)
}
