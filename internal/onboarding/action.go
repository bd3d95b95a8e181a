package onboarding

import (
	"context"
	"log/slog"
	"strings"

	"github.com/seguralta/portal/internal/identity"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/internal/validation"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/metrics"
	"github.com/seguralta/portal/pkg/middleware"
)

const (
	MsgNotLoggedIn    = "Usuário não autenticado"
	MsgFieldsRequired = "Todos os campos são obrigatórios"
	MsgUpdateFailed   = "Erro ao atualizar usuário"
	MsgCompleted      = "Cadastro concluído"
)

// Outcome labels recorded in the onboarding metric.
const (
	OutcomeSuccess         = "success"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeInvalid         = "invalid"
	OutcomeMetadataError   = "metadata_error"
	OutcomeStoreError      = "store_error"
)

// Result is the tagged result of the action. Exactly one of Message and
// Error is set.
type Result struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports a successful result.
func (r Result) OK() bool { return r.Error == "" }

// MetadataWriter overwrites the caller's public metadata at the provider.
type MetadataWriter interface {
	UpdatePublicMetadata(ctx context.Context, externalID string, md identity.PublicMetadata) error
}

// StoreMutator completes onboarding for the subject of a mutation token.
type StoreMutator interface {
	CompleteOnboarding(ctx context.Context, token string, f users.OnboardingFields) (string, error)
}

// TokenIssuer issues the short-lived token the store mutation is called with.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// Action completes onboarding for the session in ctx: provider metadata is
// written first, then the store record. There is no rollback; a store
// failure after the metadata write leaves the two out of step until the
// reconcile command repairs it.
type Action struct {
	idp     MetadataWriter
	store   StoreMutator
	tokens  TokenIssuer
	monitor *metrics.Monitor
	log     *slog.Logger
}

func NewAction(idp MetadataWriter, store StoreMutator, tokens TokenIssuer, mon *metrics.Monitor) *Action {
	return &Action{idp: idp, store: store, tokens: tokens, monitor: mon, log: logger.With("onboarding")}
}

// Complete never returns an error value; failures are reported in Result.
func (a *Action) Complete(ctx context.Context, v Values) Result {
	externalID := middleware.SubjectFromContext(ctx)
	if externalID == "" {
		return a.fail(OutcomeUnauthenticated, MsgNotLoggedIn)
	}

	name := validation.SanitizeName(v.Name)
	phone := validation.SanitizePhone(v.Phone)
	cpf := validation.SanitizeCPF(v.CPF)
	if name == "" || strings.TrimSpace(v.Phone) == "" || strings.TrimSpace(v.CPF) == "" {
		return a.fail(OutcomeInvalid, MsgFieldsRequired)
	}
	// Validate the full digit strings; the sanitizers truncate.
	for _, r := range []validation.Result{
		validation.ValidateName(name),
		validation.ValidatePhone(validation.Digits(v.Phone)),
		validation.ValidateCPF(validation.Digits(v.CPF)),
	} {
		if !r.IsValid {
			return a.fail(OutcomeInvalid, r.Error)
		}
	}

	md := identity.PublicMetadata{OnboardingComplete: true, Name: name, Phone: phone, CPF: cpf}
	if err := a.idp.UpdatePublicMetadata(ctx, externalID, md); err != nil {
		a.log.Error("metadata update failed", "externalId", externalID, "error", err)
		return a.fail(OutcomeMetadataError, MsgUpdateFailed)
	}

	token, err := a.tokens.Issue(externalID)
	if err != nil {
		a.log.Error("mutation token", "externalId", externalID, "error", err)
		return a.fail(OutcomeStoreError, MsgUpdateFailed)
	}
	if _, err := a.store.CompleteOnboarding(ctx, token, users.OnboardingFields{Name: name, Phone: phone, CPF: cpf}); err != nil {
		a.log.Error("store update failed after metadata write; run reconcile",
			"externalId", externalID, "error", err)
		return a.fail(OutcomeStoreError, MsgUpdateFailed)
	}

	a.monitor.ObserveOnboarding(OutcomeSuccess)
	a.log.Info("onboarding completed", "externalId", externalID)
	return Result{Message: MsgCompleted}
}

func (a *Action) fail(outcome, msg string) Result {
	a.monitor.ObserveOnboarding(outcome)
	return Result{Error: msg}
}
