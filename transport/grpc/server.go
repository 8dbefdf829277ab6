package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hl8/hl8-go-pkg/errors"
	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/metrics"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

/* ========================================================================
 * gRPC Server - 模块间通信
 * ========================================================================
 * 职责: 提供 gRPC 服务，支持 TCP 和 BufConn 模式，
 *       隔离上下文通过 metadata 在调用链间透传
 * 技术: google.golang.org/grpc
 * ======================================================================== */

const bufSize = 1024 * 1024

type Config struct {
	Port int    `mapstructure:"port" yaml:"port"`
	Mode string `mapstructure:"mode" yaml:"mode"` // monolith or microservice

	// IsolationFallback metadata 中隔离标识非法时的策略: platform | reject，
	// 默认 platform（降级为平台级上下文并记录指标）
	IsolationFallback string `mapstructure:"isolation_fallback" yaml:"isolation_fallback"`

	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig gRPC 客户端 TLS 配置
type TLSConfig struct {
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	CertFile   string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile    string `mapstructure:"key_file" yaml:"key_file"`
	CAFile     string `mapstructure:"ca_file" yaml:"ca_file"`
	ServerName string `mapstructure:"server_name" yaml:"server_name"`
	Insecure   bool   `mapstructure:"insecure" yaml:"insecure"` // 跳过证书验证
}

type ListenerProviderParams struct {
	fx.In
	Config Config
	Logger *logger.Logger
}

// InProcListener 全局 bufconn 监听器，仅在 Monolith 模式下使用
type InProcListener struct {
	*bufconn.Listener
}

func NewInProcListener() *InProcListener {
	return &InProcListener{Listener: bufconn.Listen(bufSize)}
}

// NewListener 创建 gRPC 监听器 (TCP 或 BufConn)
func NewListener(p ListenerProviderParams, inProc *InProcListener) (net.Listener, error) {
	if p.Config.Mode == "monolith" {
		p.Logger.Info("grpc listener: in-memory bufconn")
		return inProc.Listener, nil
	}

	p.Logger.Info("grpc listener: tcp", zap.Int("port", p.Config.Port))
	return net.Listen("tcp", fmt.Sprintf(":%d", p.Config.Port))
}

type ServerParams struct {
	fx.In
	Lc       fx.Lifecycle
	Config   Config
	Listener net.Listener
	Logger   *logger.Logger
}

// recoveryInterceptor panic 恢复拦截器
func recoveryInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.WithIsolation(ctx).Error("grpc panic recovered",
					zap.Any("panic", r),
					zap.String("method", info.FullMethod),
					zap.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// isolationInterceptor 从 incoming metadata 解析隔离标识并注入 context。
// 解析失败按 fallback 策略处理，与 HTTP 中间件保持同一语义。
func isolationInterceptor(log *logger.Logger, fallback string) grpc.UnaryServerInterceptor {
	if fallback == "" {
		fallback = "platform"
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		get := func(key string) string {
			if vals := md.Get(key); len(vals) > 0 {
				return vals[0]
			}
			return ""
		}

		ic, err := isolation.FromHeaderLookup(get)
		if err != nil {
			metrics.IsolationFallbackTotal.WithLabelValues("grpc", fallback).Inc()
			if fallback == "reject" {
				return nil, errors.ToGRPCError(err)
			}
			log.Warn("invalid isolation metadata, degrading to platform scope",
				zap.String("method", info.FullMethod),
				zap.Error(err),
			)
			ic = isolation.Platform()
		}

		return handler(isolation.WithContext(ctx, ic), req)
	}
}

// loggingInterceptor 请求日志与指标拦截器
func loggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()
		resp, err = handler(ctx, req)
		duration := time.Since(start)

		metrics.GRPCRequestTotal.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()

		if err != nil {
			log.WithIsolation(ctx).Warn("grpc request failed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else if duration > 500*time.Millisecond {
			log.WithIsolation(ctx).Warn("grpc slow request",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", duration),
			)
		}

		return resp, err
	}
}

// NewServer 创建 gRPC Server 并管理生命周期
func NewServer(p ServerParams) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(p.Logger),
			isolationInterceptor(p.Logger, p.Config.IsolationFallback),
			loggingInterceptor(p.Logger),
		),
		// Keepalive 配置，防止空闲连接堆积
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		// 限制最大消息大小，防止 OOM
		grpc.MaxRecvMsgSize(16 * 1024 * 1024),
		grpc.MaxSendMsgSize(16 * 1024 * 1024),
	}
	s := grpc.NewServer(opts...)

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Listener 在 NewListener 中已创建，端口绑定失败会在那里暴露
			errChan := make(chan error, 1)
			go func() {
				p.Logger.Info("grpc server starting")
				if err := s.Serve(p.Listener); err != nil {
					p.Logger.Error("grpc server exited", zap.Error(err))
					errChan <- err
				}
			}()

			select {
			case err := <-errChan:
				return err
			case <-ctx.Done():
				return ctx.Err()
			default:
				return nil
			}
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("grpc server stopping")
			stopped := make(chan struct{})
			go func() {
				s.GracefulStop()
				close(stopped)
			}()

			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				p.Logger.Warn("grpc graceful stop timeout, forcing stop", zap.Error(ctx.Err()))
				s.Stop()
				return ctx.Err()
			}
		},
	})
	return s
}

// IsolationClientInterceptor 把当前隔离上下文写入 outgoing metadata，
// 保证跨服务调用时隔离标识不丢失
func IsolationClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		headers := isolation.CarryHeaders(ctx)
		for key, value := range headers {
			ctx = metadata.AppendToOutgoingContext(ctx, key, value)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ClientFactory 用于创建 gRPC 客户端
type ClientFactory func(target string) (*grpc.ClientConn, error)

// NewClientFactory 返回创建 ClientConn 的工厂函数。
// Monolith 模式下自动使用 BufConn Dialer。
func NewClientFactory(cfg Config, inProc *InProcListener) ClientFactory {
	return func(target string) (*grpc.ClientConn, error) {
		creds := insecure.NewCredentials()
		if cfg.Mode != "monolith" && cfg.TLS.Enable {
			tlsConfig, err := buildTLSConfig(cfg.TLS)
			if err != nil {
				return nil, err
			}
			creds = credentials.NewTLS(tlsConfig)
		}

		opts := []grpc.DialOption{
			grpc.WithTransportCredentials(creds),
			grpc.WithChainUnaryInterceptor(IsolationClientInterceptor()),
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(16*1024*1024),
				grpc.MaxCallSendMsgSize(16*1024*1024),
			),
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					MaxDelay:  30 * time.Second,
					BaseDelay: 1 * time.Second,
				},
				MinConnectTimeout: 10 * time.Second,
			}),
		}

		if cfg.Mode == "monolith" {
			opts = append(opts, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return inProc.Dial()
			}))
			// passthrough resolver 避免默认 dns resolver 报 "produced zero addresses"
			target = "passthrough:///bufconn"
		}

		return grpc.NewClient(target, opts...)
	}
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.ServerName != "" {
		tlsConfig.ServerName = cfg.ServerName
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		caCertPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load cert/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
