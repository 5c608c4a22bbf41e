package pipeline

import (
	"ArtBot/ai"
	"ArtBot/core"
	"ArtBot/ledger"
	"ArtBot/lib/sl"
	"ArtBot/storage"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// inlineRef marks prompt records whose image came back as inline data
// instead of a hosted URL.
const inlineRef = "inline_base64"

// Provider issues one generation call for a prompt.
type Provider interface {
	Generate(prompt string) (*ai.Response, error)
}

// Fetcher resolves a normalized artifact to deliverable bytes.
type Fetcher interface {
	Fetch(artifact ai.Artifact) ([]byte, string, error)
}

// Localizer resolves user-facing message templates by language tag.
type Localizer interface {
	Get(lang, key string) string
}

// Pipeline sequences one prompt from balance check to photo delivery.
// Every exit, success or failure, sends exactly one message to the chat.
type Pipeline struct {
	conf      *core.Config
	log       *slog.Logger
	provider  Provider
	fetcher   Fetcher
	ledger    *ledger.Ledger
	users     storage.UserStorage
	prompts   storage.PromptStorage
	transport core.Transport
	loc       Localizer
}

func New(
	conf *core.Config,
	log *slog.Logger,
	provider Provider,
	fetcher Fetcher,
	ledg *ledger.Ledger,
	users storage.UserStorage,
	prompts storage.PromptStorage,
	transport core.Transport,
	loc Localizer,
) *Pipeline {
	return &Pipeline{
		conf:      conf,
		log:       log.With(sl.Module("pipeline")),
		provider:  provider,
		fetcher:   fetcher,
		ledger:    ledg,
		users:     users,
		prompts:   prompts,
		transport: transport,
		loc:       loc,
	}
}

type failKind int

const (
	failNotRegistered failKind = iota
	failInsufficientCredit
	failGeneration
	failUnsupportedFormat
	failDownload
	failLedger
)

func (k failKind) String() string {
	switch k {
	case failNotRegistered:
		return "not_registered"
	case failInsufficientCredit:
		return "insufficient_credit"
	case failGeneration:
		return "generation_error"
	case failUnsupportedFormat:
		return "unsupported_format"
	case failDownload:
		return "download_error"
	case failLedger:
		return "ledger_error"
	}
	return "unknown"
}

func (k failKind) messageKey() string {
	switch k {
	case failNotRegistered:
		return "error_not_registered"
	case failInsufficientCredit:
		return "error_no_credits"
	}
	return "error_generation"
}

// HandlePrompt runs the whole generation flow for one inbound prompt. The
// credit is charged only after the image has been materialized, so a failed
// generation or download never costs the user anything. The audit record is
// written after the charge and is best-effort: losing it must not deny the
// user an image that was already paid for.
func (p *Pipeline) HandlePrompt(chatId int64, userId int64, prompt string) {
	log := p.log.With(
		slog.String("request", uuid.NewString()),
		sl.User(userId),
		sl.Chat(chatId),
	)

	lang := p.conf.DefaultLanguage
	user, err := p.users.GetUser(userId)
	if err != nil {
		log.Error("fetching user", sl.Err(err))
		p.fail(log, chatId, lang, failLedger)
		return
	}
	if user == nil {
		p.fail(log, chatId, lang, failNotRegistered)
		return
	}
	if user.Language != "" {
		lang = user.Language
	}
	// optimistic gate, the ledger re-checks at charge time
	if user.Credits <= 0 {
		p.fail(log, chatId, lang, failInsufficientCredit)
		return
	}

	resp, err := p.provider.Generate(prompt)
	if err != nil {
		log.Error("generation call", sl.Err(err))
		p.fail(log, chatId, lang, failGeneration)
		return
	}

	artifact := ai.Normalize(resp)
	switch artifact.Kind {
	case ai.ArtifactAbsent:
		log.Info("no image in response")
		p.fail(log, chatId, lang, failGeneration)
		return
	case ai.ArtifactInline, ai.ArtifactRemote:
	default:
		p.fail(log, chatId, lang, failUnsupportedFormat)
		return
	}

	data, mimeType, err := p.fetcher.Fetch(artifact)
	if err != nil {
		log.Error("materializing artifact", sl.Err(err))
		p.fail(log, chatId, lang, failDownload)
		return
	}

	balance, err := p.ledger.Charge(userId)
	if err != nil {
		log.Error("charging credit", sl.Err(err))
		p.fail(log, chatId, lang, failLedger)
		return
	}

	ref := artifact.URL
	if artifact.Kind == ai.ArtifactInline {
		ref = inlineRef
	}
	record := storage.PromptRecord{
		UserId:     userId,
		PromptText: prompt,
		ImageRef:   ref,
	}
	if err := p.prompts.SavePrompt(record); err != nil {
		// already charged and generated, losing the record beats
		// denying the user their image
		log.Warn("saving prompt record", sl.Err(err))
	}

	photo := core.Photo{
		Bytes:    data,
		MimeType: mimeType,
		URL:      artifact.URL,
		Caption:  fmt.Sprintf(p.loc.Get(lang, "caption_delivered"), balance),
	}
	if err := p.transport.SendPhoto(chatId, photo); err != nil {
		log.Error("delivering photo", sl.Err(err))
		return
	}
	log.With(
		slog.Int("balance", balance),
		slog.String("ref", ref),
	).Info("image delivered")
}

func (p *Pipeline) fail(log *slog.Logger, chatId int64, lang string, kind failKind) {
	log.With(slog.String("reason", kind.String())).Info("request failed")
	if err := p.transport.SendText(chatId, p.loc.Get(lang, kind.messageKey())); err != nil {
		log.Error("sending failure notice", sl.Err(err))
	}
}
