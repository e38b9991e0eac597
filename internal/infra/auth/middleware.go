package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"
)

// IdentityResolver достаёт пользователя из входящего запроса.
type IdentityResolver interface {
	Resolve(r *http.Request) (domain.Actor, error)
}

// HeaderResolver доверяет заголовкам, выставленным шлюзом перед сервисом.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (domain.Actor, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return domain.Actor{}, domain.Unauthorized("missing required header: %s", HeaderUserID)
	}
	rawRole := strings.TrimSpace(r.Header.Get(HeaderUserRole))
	if rawRole == "" {
		return domain.Actor{}, domain.Unauthorized("missing required header: %s", HeaderUserRole)
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return domain.Actor{}, err
	}

	name := strings.TrimSpace(r.Header.Get(HeaderUserName))
	if name == "" {
		name = userID
	}
	return domain.Actor{UserID: userID, UserName: name, Role: role}, nil
}

// TokenResolver берёт пользователя из claims bearer-токена.
type TokenResolver struct {
	validator *TokenValidator
}

func NewTokenResolver(v *TokenValidator) *TokenResolver {
	return &TokenResolver{validator: v}
}

func (t *TokenResolver) Resolve(r *http.Request) (domain.Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return domain.Actor{}, domain.Unauthorized("missing Authorization header")
	}
	claims, err := t.validator.VerifyToken(header)
	if err != nil {
		return domain.Actor{}, &domain.Error{Kind: domain.KindUnauthorized, Message: "invalid token", Err: err}
	}
	return claims.Actor()
}

// NewResolver выбирает способ по auth.mode.
func NewResolver(cfg infra.AuthConfig) (IdentityResolver, error) {
	if cfg.Mode != infra.AuthModeJWT {
		return HeaderResolver{}, nil
	}
	key, err := LoadRSAPublicKey(cfg.PublicKeyPath, cfg.PublicKey)
	if err != nil {
		return nil, err
	}
	return NewTokenResolver(NewTokenValidator(key)), nil
}

type actorKey struct{}

func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}

// NewMiddleware кладёт пользователя в контекст. Без личности запрос дальше не идёт: 401.
func NewMiddleware(resolver IdentityResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolver.Resolve(r)
			if err != nil {
				logger.Warn("auth failure", zap.String("path", r.URL.Path), zap.Error(err))
				writeUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	message := "Unauthorized"
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": string(domain.KindUnauthorized), "message": message},
	})
}
