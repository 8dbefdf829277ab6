package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := recoveryInterceptor(logger.NewNop())

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected status error")
	}
	if st.Code() != codes.Internal {
		t.Fatalf("unexpected code: %v", st.Code())
	}
}

func TestIsolationInterceptorExtractsContext(t *testing.T) {
	interceptor := isolationInterceptor(logger.NewNop(), "platform")

	md := metadata.Pairs(
		isolation.HeaderTenantID, "tenant-1",
		isolation.HeaderOrganizationID, "org-1",
	)
	ctx := metadata.NewIncomingContext(context.Background(), md)

	var captured *isolation.Context
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		captured, _ = isolation.FromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if captured == nil {
		t.Fatal("handler should see isolation context")
	}
	if captured.TenantID().String() != "tenant-1" {
		t.Fatalf("unexpected tenant: %s", captured.TenantID())
	}
	if captured.OrganizationID().String() != "org-1" {
		t.Fatalf("unexpected organization: %s", captured.OrganizationID())
	}
}

func TestIsolationInterceptorFallbackToPlatform(t *testing.T) {
	interceptor := isolationInterceptor(logger.NewNop(), "platform")

	// 组织标识缺少租户标识，层级链非法
	md := metadata.Pairs(isolation.HeaderOrganizationID, "org-1")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	var captured *isolation.Context
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		captured, _ = isolation.FromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("platform fallback should not fail the call: %v", err)
	}
	if captured == nil || captured.Level() != isolation.LevelPlatform {
		t.Fatalf("expected platform context, got %+v", captured)
	}
}

func TestIsolationInterceptorReject(t *testing.T) {
	interceptor := isolationInterceptor(logger.NewNop(), "reject")

	md := metadata.Pairs(isolation.HeaderOrganizationID, "org-1")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument status, got %v", err)
	}
}

func TestLoggingInterceptorPassesThroughError(t *testing.T) {
	interceptor := loggingInterceptor(logger.NewNop())

	expectedErr := errors.New("fail")
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, expectedErr
	})
	if !errors.Is(err, expectedErr) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsolationClientInterceptorPropagatesMetadata(t *testing.T) {
	interceptor := IsolationClientInterceptor()

	ic, err := isolation.New("tenant-9", "org-9", "", "")
	if err != nil {
		t.Fatalf("isolation context: %v", err)
	}
	ctx := isolation.WithContext(context.Background(), ic)

	var outgoing metadata.MD
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		outgoing, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	if err := interceptor(ctx, "/test.Service/Method", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got := outgoing.Get(isolation.HeaderTenantID); len(got) != 1 || got[0] != "tenant-9" {
		t.Fatalf("tenant metadata missing: %v", outgoing)
	}
	if got := outgoing.Get(isolation.HeaderOrganizationID); len(got) != 1 || got[0] != "org-9" {
		t.Fatalf("organization metadata missing: %v", outgoing)
	}
}

func TestNewListenerMonolith(t *testing.T) {
	inProc := NewInProcListener()
	listener, err := NewListener(ListenerProviderParams{
		Config: Config{Mode: "monolith"},
		Logger: logger.NewNop(),
	}, inProc)
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	if listener != inProc.Listener {
		t.Fatalf("expected in-proc listener")
	}
}

func TestNewListenerTCP(t *testing.T) {
	inProc := NewInProcListener()
	listener, err := NewListener(ListenerProviderParams{
		Config: Config{Mode: "microservice", Port: 0},
		Logger: logger.NewNop(),
	}, inProc)
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	defer listener.Close()
}
