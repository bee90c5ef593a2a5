package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/policysmith/internal/core/api"
	"github.com/solatis/policysmith/internal/core/config"
	"github.com/solatis/policysmith/internal/core/metrics"
	"github.com/solatis/policysmith/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTestServer serves a real PolicyEngineService over an in-memory
// listener and returns a connected client.
func startTestServer(t *testing.T) (*grpc.ClientConn, *prometheus.Registry) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	logger := discardLogger()

	svc, err := api.NewPolicyEngineService(nil, cfg, collector, logger)
	if err != nil {
		t.Fatalf("NewPolicyEngineService() error = %v", err)
	}
	srv, err := NewGRPCServer(&cfg.Server, svc, collector, logger)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(context.Background(), lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, reg
}

func TestNewGRPCServer_RequiresArguments(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, err := api.NewPolicyEngineService(nil, &config.Config{DataDir: t.TempDir()}, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewPolicyEngineService() error = %v", err)
	}

	if _, err := NewGRPCServer(nil, svc, nil, discardLogger()); err == nil {
		t.Error("expected error for nil cfg")
	}
	if _, err := NewGRPCServer(&cfg.Server, nil, nil, discardLogger()); err == nil {
		t.Error("expected error for nil service")
	}
	if _, err := NewGRPCServer(&cfg.Server, svc, nil, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestGRPCServer_Health(t *testing.T) {
	conn, _ := startTestServer(t)
	client := grpc_health_v1.NewHealthClient(conn)

	for _, service := range []string{"", api.ServiceName} {
		resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", service, resp.Status)
		}
	}
}

func TestGRPCServer_EvaluateRules(t *testing.T) {
	conn, reg := startTestServer(t)
	client := api.NewClient(conn)

	req := api.EvaluateRulesRequest{
		PolicyID: "aml",
		Rules: []types.Rule{{
			ID: "r1", PolicyID: "aml", Name: "Cash business", Priority: types.NewPriority(1), IsActive: true,
			Condition: types.NewCondition("sector", "in", []any{"cash", "gambling"}),
			Action:    &types.RuleAction{IncludeClauseCodes: []string{"aml_cash"}},
		}},
		Answers: types.Answers{"sector": "cash"},
	}
	var result types.RulesEngineResult
	if err := client.Call(context.Background(), api.MethodEvaluateRules, req, &result); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(result.IncludedClauses) != 1 || result.IncludedClauses[0] != "aml_cash" {
		t.Errorf("included = %v, want [aml_cash]", result.IncludedClauses)
	}

	var ignored types.RulesEngineResult
	err := client.Call(context.Background(), api.MethodEvaluateRules, api.EvaluateRulesRequest{}, &ignored)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing policy code = %v, want InvalidArgument", status.Code(err))
	}

	if got, err := testutil.GatherAndCount(reg, "policysmith_requests_total"); err != nil || got != 2 {
		t.Errorf("requests series = %d, want 2 (OK and InvalidArgument)", got)
	}
}

func TestGRPCServer_GenerateDocumentBuiltinTemplate(t *testing.T) {
	conn, _ := startTestServer(t)
	client := api.NewClient(conn)

	req := api.GenerateDocumentRequest{
		PolicyKey: "complaints",
		Clauses: []types.Clause{
			{ID: "cmp_statement_commitment", Title: "Commitment", BodyMD: "{{firm.name}} treats complaints fairly."},
		},
		Answers: types.Answers{"detailLevel": "focused"},
		Firm:    types.FirmProfile{ID: "firm_9", Name: "Northwind Payments"},
	}
	var resp api.GenerateDocumentResponse
	if err := client.Call(context.Background(), api.MethodGenerateDocument, req, &resp); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	doc := resp.Document
	if doc.TemplateID != "tpl_complaints_v1" {
		t.Errorf("template_id = %q", doc.TemplateID)
	}
	if got := doc.Sections[0].Clauses[0].BodyMD; got != "Northwind Payments treats complaints fairly." {
		t.Errorf("first clause = %q", got)
	}
	if len(doc.MissingClauses) == 0 {
		t.Error("expected clauses absent from the library to be reported missing")
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := recoveryInterceptor(discardLogger())
	info := &grpc.UnaryServerInfo{FullMethod: api.MethodAssemble}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Errorf("code = %v, want Internal", status.Code(err))
	}
}

func TestTimeoutInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: api.MethodAssemble}

	interceptor := timeoutInterceptor(10 * time.Millisecond)
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}

	interceptor = timeoutInterceptor(0)
	_, err = interceptor(context.Background(), nil, info, func(ctx context.Context, _ any) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return nil, errors.New("unexpected deadline")
		}
		return nil, nil
	})
	if err != nil {
		t.Errorf("zero timeout err = %v", err)
	}
}

func TestObserveInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	interceptor := observeInterceptor(discardLogger(), metrics.New(reg))
	info := &grpc.UnaryServerInfo{FullMethod: api.MethodGenerateDocument}

	_, _ = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "template not found")
	})

	if got, err := testutil.GatherAndCount(reg, "policysmith_requests_total"); err != nil || got != 1 {
		t.Errorf("requests series = %d, want 1", got)
	}
	if got, err := testutil.GatherAndCount(reg, "policysmith_request_duration_seconds"); err != nil || got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestGRPCServer_ShutdownReleasesGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	collector := metrics.New(nil)
	logger := discardLogger()

	svc, err := api.NewPolicyEngineService(nil, cfg, collector, logger)
	if err != nil {
		t.Fatalf("NewPolicyEngineService() error = %v", err)
	}
	srv, err := NewGRPCServer(&cfg.Server, svc, collector, logger)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), lis) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
}
