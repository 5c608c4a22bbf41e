package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"ArtBot/ai"
	"ArtBot/core"
	"ArtBot/ledger"
	"ArtBot/storage"
)

type providerStub struct {
	calls int
	resp  *ai.Response
	err   error
}

func (p *providerStub) Generate(string) (*ai.Response, error) {
	p.calls++
	return p.resp, p.err
}

type fetcherStub struct {
	calls int
	data  []byte
	mime  string
	err   error
}

func (f *fetcherStub) Fetch(ai.Artifact) ([]byte, string, error) {
	f.calls++
	return f.data, f.mime, f.err
}

type transportRecorder struct {
	mu     sync.Mutex
	texts  []string
	photos []core.Photo
}

func (t *transportRecorder) SendText(_ int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, text)
	return nil
}

func (t *transportRecorder) SendPhoto(_ int64, photo core.Photo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.photos = append(t.photos, photo)
	return nil
}

func (t *transportRecorder) messageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.texts) + len(t.photos)
}

// messages resolves key templates directly so tests can assert on the
// rendered French strings.
type messagesStub struct{}

func (messagesStub) Get(lang, key string) string {
	if key == "caption_delivered" {
		return "Crédits restants: %d"
	}
	return key
}

type failingPromptStore struct{}

func (failingPromptStore) SavePrompt(storage.PromptRecord) error {
	return errors.New("audit store down")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *core.Config {
	conf := &core.Config{}
	conf.DefaultLanguage = "fr"
	conf.DefaultCredits = 3
	return conf
}

func newTestPipeline(store *storage.MemoryStorage, provider Provider, fetcher Fetcher, prompts storage.PromptStorage) (*Pipeline, *transportRecorder) {
	log := testLogger()
	transport := &transportRecorder{}
	if prompts == nil {
		prompts = store
	}
	p := New(testConfig(), log, provider, fetcher, ledger.New(store, log), store, prompts, transport, messagesStub{})
	return p, transport
}

func inlineResponse(b64 string) *ai.Response {
	return &ai.Response{Choices: []ai.Choice{{Message: ai.ResponseMessage{
		Content: ai.MessageContent{Blocks: []ai.ContentBlock{{ImageBase64: b64}}},
	}}}}
}

func remoteResponse(url string) *ai.Response {
	return &ai.Response{Choices: []ai.Choice{{Message: ai.ResponseMessage{
		Content: ai.MessageContent{Blocks: []ai.ContentBlock{{URL: url}}},
	}}}}
}

// Scenario: registered user with credits sends a prompt, provider answers
// with an inline base64 block.
func TestHandlePromptInlineDelivery(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	if _, err := store.CreateUser(7, 3, "fr"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	provider := &providerStub{resp: inlineResponse("aGVsbG8=")}
	fetcher := &fetcherStub{data: []byte("img"), mime: "image/png"}
	p, transport := newTestPipeline(store, provider, fetcher, nil)

	p.HandlePrompt(100, 7, "cat")

	if transport.messageCount() != 1 {
		t.Fatalf("expected exactly one outbound message, got %d", transport.messageCount())
	}
	if len(transport.photos) != 1 {
		t.Fatalf("expected a photo delivery, got texts %v", transport.texts)
	}
	if got := transport.photos[0].Caption; !strings.Contains(got, "Crédits restants: 2") {
		t.Fatalf("unexpected caption: %q", got)
	}

	user, _ := store.GetUser(7)
	if user.Credits != 2 {
		t.Fatalf("expected balance 2 after charge, got %d", user.Credits)
	}

	records := store.Prompts()
	if len(records) != 1 {
		t.Fatalf("expected one prompt record, got %d", len(records))
	}
	if records[0].ImageRef != "inline_base64" {
		t.Fatalf("expected inline sentinel, got %q", records[0].ImageRef)
	}
	if records[0].PromptText != "cat" || records[0].UserId != 7 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestHandlePromptRemoteRecordsURL(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	if _, err := store.CreateUser(7, 3, "fr"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	provider := &providerStub{resp: remoteResponse("https://cdn.example.com/a.png")}
	fetcher := &fetcherStub{data: []byte("img"), mime: "image/png"}
	p, transport := newTestPipeline(store, provider, fetcher, nil)

	p.HandlePrompt(100, 7, "dog")

	if fetcher.calls != 1 {
		t.Fatalf("expected one materialize call, got %d", fetcher.calls)
	}
	if len(transport.photos) != 1 {
		t.Fatalf("expected a photo delivery, got texts %v", transport.texts)
	}
	records := store.Prompts()
	if len(records) != 1 || records[0].ImageRef != "https://cdn.example.com/a.png" {
		t.Fatalf("expected remote url in record, got %+v", records)
	}
}

func TestHandlePromptNotRegistered(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	provider := &providerStub{resp: inlineResponse("aGVsbG8=")}
	p, transport := newTestPipeline(store, provider, &fetcherStub{}, nil)

	p.HandlePrompt(100, 7, "cat")

	if provider.calls != 0 {
		t.Fatalf("provider called for unregistered user")
	}
	if transport.messageCount() != 1 || len(transport.texts) != 1 {
		t.Fatalf("expected one text message, got %d texts %d photos", len(transport.texts), len(transport.photos))
	}
	if transport.texts[0] != "error_not_registered" {
		t.Fatalf("unexpected message: %q", transport.texts[0])
	}
}

// Scenario: user with zero credits, no upstream call may happen.
func TestHandlePromptInsufficientCredit(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	if _, err := store.CreateUser(7, 0, "fr"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	provider := &providerStub{resp: inlineResponse("aGVsbG8=")}
	p, transport := newTestPipeline(store, provider, &fetcherStub{}, nil)

	p.HandlePrompt(100, 7, "cat")

	if provider.calls != 0 {
		t.Fatalf("provider called despite empty balance")
	}
	if len(transport.texts) != 1 || transport.texts[0] != "error_no_credits" {
		t.Fatalf("unexpected messages: %v", transport.texts)
	}
}

// Scenario: upstream returns an error, no charge and no record.
func TestHandlePromptGenerationFailure(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	if _, err := store.CreateUser(7, 3, "fr"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	provider := &providerStub{err: fmt.Errorf("generation status 500")}
	p, transport := newTestPipeline(store, provider, &fetcherStub{}, nil)

	p.HandlePrompt(100, 7, "cat")

	if len(transport.texts) != 1 || transport.texts[0] != "error_generation" {
		t.Fatalf("unexpected messages: %v", transport.texts)
	}
	user, _ := store.GetUser(7)
	if user.Credits != 3 {
		t.Fatalf("balance mutated on generation failure: %d", user.Credits)
	}
	if len(store.Prompts()) != 0 {
		t.Fatalf("record persisted on generation failure")
	}
}

func TestHandlePromptAbsentArtifact(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	if _, err := store.CreateUser(7, 3, "fr"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	provider := &providerStub{resp: &ai.Response{Choices: []ai.Choice{{Message: ai.ResponseMessage{
		Content: ai.MessageContent{Text: "I cannot draw that"},
	}}}}}
	fetcher := &fetcherStub{}
	p, transport := newTestPipeline(store, provider, fetcher, nil)

	p.HandlePrompt(100, 7, "cat")

	if fetcher.calls != 0 {
		t.Fatalf("materializer called for absent artifact")
	}
	if len(transport.texts) != 1 || transport.texts[0] != "error_generation" {
		t.Fatalf("unexpected messages: %v", transport.texts)
	}
	user, _ := store.GetUser(7)
	if user.Credits != 3 {
		t.Fatalf("balance mutated: %d", user.Credits)
	}
}

// Scenario: the image url is there but the download fails, no charge.
func TestHandlePromptDownloadFailure(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	if _, err := store.CreateUser(7, 3, "fr"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	provider := &providerStub{resp: remoteResponse("https://cdn.example.com/a.png")}
	fetcher := &fetcherStub{err: ai.ErrDownloadFailed}
	p, transport := newTestPipeline(store, provider, fetcher, nil)

	p.HandlePrompt(100, 7, "cat")

	if len(transport.texts) != 1 || transport.texts[0] != "error_generation" {
		t.Fatalf("unexpected messages: %v", transport.texts)
	}
	user, _ := store.GetUser(7)
	if user.Credits != 3 {
		t.Fatalf("balance mutated on download failure: %d", user.Credits)
	}
	if len(store.Prompts()) != 0 {
		t.Fatalf("record persisted on download failure")
	}
}

// A failed audit write must not take back the charge or block delivery.
func TestHandlePromptAuditFailureStillDelivers(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	if _, err := store.CreateUser(7, 3, "fr"); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	provider := &providerStub{resp: inlineResponse("aGVsbG8=")}
	fetcher := &fetcherStub{data: []byte("img"), mime: "image/png"}
	p, transport := newTestPipeline(store, provider, fetcher, failingPromptStore{})

	p.HandlePrompt(100, 7, "cat")

	if len(transport.photos) != 1 {
		t.Fatalf("delivery blocked by audit failure, texts: %v", transport.texts)
	}
	user, _ := store.GetUser(7)
	if user.Credits != 2 {
		t.Fatalf("expected charge to stand, balance %d", user.Credits)
	}
}
