// Package grpcauth authenticates and authorizes gRPC calls with the same
// bearer tokens the HTTP API issues.
package grpcauth

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"capgate.org/internal/auth"
	"capgate.org/internal/obs"
)

const authorizationKey = "authorization"

// Verifier checks a bearer token. *auth.TokenService satisfies it.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Policy maps full method names to the capability they require. Methods
// absent from Required only need a valid token; Public methods skip checks.
type Policy struct {
	Required map[string]auth.Capability
	Public   map[string]bool
}

// UnaryServerInterceptor enforces policy on unary calls.
func UnaryServerInterceptor(v Verifier, policy Policy) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := policy.check(ctx, v, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor enforces policy on streaming calls.
func StreamServerInterceptor(v Verifier, policy Policy) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := policy.check(ss.Context(), v, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

func (p Policy) check(ctx context.Context, v Verifier, method string) (context.Context, error) {
	if p.Public[method] {
		return ctx, nil
	}
	token, err := tokenFromMetadata(ctx)
	if err != nil {
		return nil, toStatus(method, err)
	}
	identity, err := v.Verify(token)
	if err != nil {
		return nil, toStatus(method, err)
	}
	if required, ok := p.Required[method]; ok {
		decision := auth.Authorize(identity, required)
		obs.RecordAuthorization(string(required), decision.String())
		if decision != auth.Allow {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
	}
	return auth.ContextWithIdentity(ctx, identity), nil
}

func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", auth.ErrMissingToken
	}
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		return "", auth.ErrMissingToken
	}
	header := strings.TrimSpace(values[0])
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", auth.ErrMalformedToken
	}
	token := strings.TrimSpace(header[len("bearer "):])
	if token == "" {
		return "", auth.ErrMissingToken
	}
	return token, nil
}

func toStatus(method string, err error) error {
	obs.Logger().WithFields(logrus.Fields{
		"method": method,
		"kind":   auth.Kind(err),
	}).Warn("grpc authentication failed")
	switch {
	case errors.Is(err, auth.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, "service unavailable")
	case auth.IsInfrastructure(err):
		return status.Error(codes.Internal, "authentication error")
	default:
		return status.Error(codes.Unauthenticated, "unauthorized")
	}
}
