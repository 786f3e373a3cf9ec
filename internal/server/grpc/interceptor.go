package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/shelfmark/authd/internal/common"
)

type ctxKey string

const principalIDKey ctxKey = "principalID"

// PrincipalFromContext returns the authenticated principal id placed into
// the context by the access-token interceptor.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalIDKey).(string)
	return id, ok
}

// isExempt reports whether a method is served without an access token.
// Health checks and gRPC infra services stay open; everything else is
// authenticated.
func isExempt(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/") ||
		strings.HasPrefix(fullMethod, "/grpc.reflection.")
}

func (s *Server) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if isExempt(info.FullMethod) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get("access_token")
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.codec.DecodeAccess(accessToken)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrTokenExpired):
			return nil, status.Error(codes.Unauthenticated, "token expired")
		default:
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
	}

	ctx = context.WithValue(ctx, principalIDKey, claims.PrincipalID())
	return handler(ctx, req)
}
