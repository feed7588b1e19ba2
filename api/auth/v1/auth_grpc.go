package authv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const AuthService_ServiceName = "didlink.auth.v1.AuthService"

const (
	AuthService_BeginSetup_FullMethodName      = "/didlink.auth.v1.AuthService/BeginSetup"
	AuthService_CompleteSetup_FullMethodName   = "/didlink.auth.v1.AuthService/CompleteSetup"
	AuthService_RevokeMethod_FullMethodName    = "/didlink.auth.v1.AuthService/RevokeMethod"
	AuthService_ListMethods_FullMethodName     = "/didlink.auth.v1.AuthService/ListMethods"
	AuthService_CreateSession_FullMethodName   = "/didlink.auth.v1.AuthService/CreateSession"
	AuthService_ValidateSession_FullMethodName = "/didlink.auth.v1.AuthService/ValidateSession"
	AuthService_RevokeSession_FullMethodName   = "/didlink.auth.v1.AuthService/RevokeSession"
)

// AuthServiceServer is the server API for AuthService.
type AuthServiceServer interface {
	BeginSetup(context.Context, *BeginSetupRequest) (*BeginSetupResponse, error)
	CompleteSetup(context.Context, *CompleteSetupRequest) (*CompleteSetupResponse, error)
	RevokeMethod(context.Context, *RevokeMethodRequest) (*RevokeMethodResponse, error)
	ListMethods(context.Context, *ListMethodsRequest) (*ListMethodsResponse, error)
	CreateSession(context.Context, *CreateSessionRequest) (*CreateSessionResponse, error)
	ValidateSession(context.Context, *ValidateSessionRequest) (*ValidateSessionResponse, error)
	RevokeSession(context.Context, *RevokeSessionRequest) (*RevokeSessionResponse, error)
}

// UnimplementedAuthServiceServer returns Unimplemented for every method. Embed it for forward compatibility.
type UnimplementedAuthServiceServer struct{}

func (UnimplementedAuthServiceServer) BeginSetup(context.Context, *BeginSetupRequest) (*BeginSetupResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method BeginSetup not implemented")
}
func (UnimplementedAuthServiceServer) CompleteSetup(context.Context, *CompleteSetupRequest) (*CompleteSetupResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CompleteSetup not implemented")
}
func (UnimplementedAuthServiceServer) RevokeMethod(context.Context, *RevokeMethodRequest) (*RevokeMethodResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeMethod not implemented")
}
func (UnimplementedAuthServiceServer) ListMethods(context.Context, *ListMethodsRequest) (*ListMethodsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListMethods not implemented")
}
func (UnimplementedAuthServiceServer) CreateSession(context.Context, *CreateSessionRequest) (*CreateSessionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateSession not implemented")
}
func (UnimplementedAuthServiceServer) ValidateSession(context.Context, *ValidateSessionRequest) (*ValidateSessionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ValidateSession not implemented")
}
func (UnimplementedAuthServiceServer) RevokeSession(context.Context, *RevokeSessionRequest) (*RevokeSessionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeSession not implemented")
}

// RegisterAuthServiceServer registers srv with s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthService_ServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodHandler, running the server interceptor chain when set.
func unary[Req, Resp any](fullMethod string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AuthService_ServiceDesc is the grpc.ServiceDesc for AuthService.
var AuthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthService_ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BeginSetup", Handler: unary(AuthService_BeginSetup_FullMethodName, AuthServiceServer.BeginSetup)},
		{MethodName: "CompleteSetup", Handler: unary(AuthService_CompleteSetup_FullMethodName, AuthServiceServer.CompleteSetup)},
		{MethodName: "RevokeMethod", Handler: unary(AuthService_RevokeMethod_FullMethodName, AuthServiceServer.RevokeMethod)},
		{MethodName: "ListMethods", Handler: unary(AuthService_ListMethods_FullMethodName, AuthServiceServer.ListMethods)},
		{MethodName: "CreateSession", Handler: unary(AuthService_CreateSession_FullMethodName, AuthServiceServer.CreateSession)},
		{MethodName: "ValidateSession", Handler: unary(AuthService_ValidateSession_FullMethodName, AuthServiceServer.ValidateSession)},
		{MethodName: "RevokeSession", Handler: unary(AuthService_RevokeSession_FullMethodName, AuthServiceServer.RevokeSession)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "didlink/auth/v1",
}

// AuthServiceClient is the client API for AuthService.
type AuthServiceClient interface {
	BeginSetup(ctx context.Context, in *BeginSetupRequest, opts ...grpc.CallOption) (*BeginSetupResponse, error)
	CompleteSetup(ctx context.Context, in *CompleteSetupRequest, opts ...grpc.CallOption) (*CompleteSetupResponse, error)
	RevokeMethod(ctx context.Context, in *RevokeMethodRequest, opts ...grpc.CallOption) (*RevokeMethodResponse, error)
	ListMethods(ctx context.Context, in *ListMethodsRequest, opts ...grpc.CallOption) (*ListMethodsResponse, error)
	CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*CreateSessionResponse, error)
	ValidateSession(ctx context.Context, in *ValidateSessionRequest, opts ...grpc.CallOption) (*ValidateSessionResponse, error)
	RevokeSession(ctx context.Context, in *RevokeSessionRequest, opts ...grpc.CallOption) (*RevokeSessionResponse, error)
}

type authServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAuthServiceClient returns a client that sends every call with the JSON content-subtype.
func NewAuthServiceClient(cc grpc.ClientConnInterface) AuthServiceClient {
	return &authServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *authServiceClient) BeginSetup(ctx context.Context, in *BeginSetupRequest, opts ...grpc.CallOption) (*BeginSetupResponse, error) {
	return invoke[BeginSetupResponse](ctx, c.cc, AuthService_BeginSetup_FullMethodName, in, opts)
}

func (c *authServiceClient) CompleteSetup(ctx context.Context, in *CompleteSetupRequest, opts ...grpc.CallOption) (*CompleteSetupResponse, error) {
	return invoke[CompleteSetupResponse](ctx, c.cc, AuthService_CompleteSetup_FullMethodName, in, opts)
}

func (c *authServiceClient) RevokeMethod(ctx context.Context, in *RevokeMethodRequest, opts ...grpc.CallOption) (*RevokeMethodResponse, error) {
	return invoke[RevokeMethodResponse](ctx, c.cc, AuthService_RevokeMethod_FullMethodName, in, opts)
}

func (c *authServiceClient) ListMethods(ctx context.Context, in *ListMethodsRequest, opts ...grpc.CallOption) (*ListMethodsResponse, error) {
	return invoke[ListMethodsResponse](ctx, c.cc, AuthService_ListMethods_FullMethodName, in, opts)
}

func (c *authServiceClient) CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*CreateSessionResponse, error) {
	return invoke[CreateSessionResponse](ctx, c.cc, AuthService_CreateSession_FullMethodName, in, opts)
}

func (c *authServiceClient) ValidateSession(ctx context.Context, in *ValidateSessionRequest, opts ...grpc.CallOption) (*ValidateSessionResponse, error) {
	return invoke[ValidateSessionResponse](ctx, c.cc, AuthService_ValidateSession_FullMethodName, in, opts)
}

func (c *authServiceClient) RevokeSession(ctx context.Context, in *RevokeSessionRequest, opts ...grpc.CallOption) (*RevokeSessionResponse, error) {
	return invoke[RevokeSessionResponse](ctx, c.cc, AuthService_RevokeSession_FullMethodName, in, opts)
}
