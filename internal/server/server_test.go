package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/config"
	"github.com/JakeFAU/paperscout/internal/crawler"
)

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, req crawler.SearchRequest) crawler.RunResult {
	return crawler.RunResult{OK: true, Request: req}
}

func (stubRunner) Themes() []string { return []string{"ai_ml"} }

func TestServeAnswersUntilCanceled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, config.Config{}, stubRunner{}, zap.NewNop())
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", ln.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunFailsWhenPortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Config{Server: config.ServerConfig{Port: ln.Addr().(*net.TCPAddr).Port}}
	err = Run(context.Background(), cfg, stubRunner{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on port")
}
