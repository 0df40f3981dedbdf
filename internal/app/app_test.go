package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/config"
	"DealScanner/internal/infrastructure/telegram"
)

const carsPage = `<html><body>
<div class="b-list-advert-base">
  <a href="/abuja/cars/toyota-camry-2012-urgent">
    <div class="b-advert-title-inner">Toyota Camry 2012 urgent sale</div>
    <div class="qa-advert-price">₦ 4,500,000</div>
    <span class="b-list-advert__region__text">Gwarinpa, Abuja</span>
  </a>
</div>
<div class="b-list-advert-base">
  <a href="/lagos/cars/lexus-rx-350">
    <h3>Lexus RX 350</h3>
    <span class="region">Ikeja, Lagos</span>
  </a>
</div>
</body></html>`

type telegramStub struct {
	mu    sync.Mutex
	texts []string
}

func (s *telegramStub) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.texts = append(s.texts, r.PostForm.Get("text"))
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (s *telegramStub) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func testConfig(t *testing.T, siteURL, telegramURL, ledgerYAML string) config.Config {
	t.Helper()
	raw := fmt.Sprintf(`
scheduler:
  dispatchDelay: 0s
  sendStartup: false
fetch:
  transientDelayMin: 0s
  transientDelayMax: 0s
  requestDelayMin: 0s
  requestDelayMax: 0s
%s
notifications:
  telegram:
    botToken: test-token
    chatId: "42"
    apiBaseUrl: %s
    messagesPerSecond: 0
sites:
  - name: local
    strategy: static
    baseUrl: %s
    minBodyBytes: 1
    pages:
      - name: cars
        url: %s/abuja/cars
`, ledgerYAML, telegramURL, siteURL, siteURL)
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	return cfg
}

func newServers(t *testing.T) (*httptest.Server, *httptest.Server, *telegramStub) {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(carsPage))
	}))
	t.Cleanup(site.Close)

	stub := &telegramStub{}
	tg := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(tg.Close)
	return site, tg, stub
}

func TestRunOnceDeliversOnce(t *testing.T) {
	t.Parallel()

	site, tg, stub := newServers(t)
	cfg := testConfig(t, site.URL, tg.URL, "ledger:\n  backend: memory")

	ctx := context.Background()
	application, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(ctx) })

	report, err := application.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sources)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 1, report.Delivered)

	sent := stub.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Toyota Camry 2012 urgent sale")

	report, err = application.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Delivered)
	assert.Len(t, stub.sent(), 1)
	assert.Equal(t, 1, application.Scheduler().Status().LedgerSize)
}

func TestFileLedgerSurvivesRestart(t *testing.T) {
	t.Parallel()

	site, tg, stub := newServers(t)
	path := filepath.Join(t.TempDir(), "delivered.ledger")
	cfg := testConfig(t, site.URL, tg.URL, "ledger:\n  backend: file\n  path: "+path)
	ctx := context.Background()

	first, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	report, err := first.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Delivered)
	require.NoError(t, first.Close(ctx))

	second, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(ctx) })
	report, err = second.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
	assert.Equal(t, 0, report.Delivered)
	assert.Len(t, stub.sent(), 1)
}

func TestDryRunUsesLogNotifierAndMemoryLedger(t *testing.T) {
	t.Parallel()

	site, tg, stub := newServers(t)
	path := filepath.Join(t.TempDir(), "delivered.ledger")
	cfg := testConfig(t, site.URL, tg.URL, "ledger:\n  backend: file\n  path: "+path)
	ctx := context.Background()

	application, err := New(ctx, cfg, nil, Options{DryRun: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(ctx) })

	report, err := application.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Empty(t, stub.sent())
	assert.NoFileExists(t, path)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte("ledger:\n  backend: s3\n"))
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, nil, Options{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Backend"), err.Error())
}

func TestResolveSourcesNamesPages(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://cars.example", "http://tg.example", "")
	sources, err := ResolveSources(cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "local/cars", sources[0].Name())
	assert.Equal(t, "http://cars.example", sources[0].BaseURL())
}

func TestBuildNotifiers(t *testing.T) {
	t.Parallel()

	n, op := buildNotifiers(config.TelegramConfig{}, false, nil)
	assert.IsType(t, &telegram.LogNotifier{}, n)
	assert.Nil(t, op)

	enabled := config.TelegramConfig{BotToken: "t", ChatID: "1", OperatorChatID: "2"}
	n, op = buildNotifiers(enabled, false, nil)
	assert.IsType(t, &telegram.Notifier{}, n)
	assert.IsType(t, &telegram.Notifier{}, op)

	n, _ = buildNotifiers(enabled, true, nil)
	assert.IsType(t, &telegram.LogNotifier{}, n)
}
