package handler

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	authv1 "didlink/api/auth/v1"
	"didlink/internal/autherr"
	"didlink/internal/method/domain"
	"didlink/internal/server/interceptors"
)

const testDID = "did:example:abc123"

// dial serves srv over an in-memory listener with the production interceptors and returns a JSON client.
func dial(t *testing.T, srv authv1.AuthServiceServer) authv1.AuthServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors.RequestUnary(), interceptors.BearerUnary()))
	authv1.RegisterAuthServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return authv1.NewAuthServiceClient(conn)
}

func TestAuthService_BeginAndCompleteOverJSON(t *testing.T) {
	methods := &fakeMethods{}
	client := dial(t, NewServer(methods, &fakeSessions{}))
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-real-ip", "198.51.100.4")

	begin, err := client.BeginSetup(ctx, &authv1.BeginSetupRequest{DID: testDID, MethodType: "totp", ProofOfControl: "jws"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", begin.MethodID)
	assert.Equal(t, []string{"abcd-efgh"}, begin.BackupCodes)
	assert.True(t, begin.VerificationRequired)
	assert.Equal(t, domain.MethodTypeTOTP, methods.begin.MethodType)
	assert.Equal(t, "jws", methods.begin.Proof)

	done, err := client.CompleteSetup(ctx, &authv1.CompleteSetupRequest{
		DID: testDID, MethodID: "m-1", ProofOfControl: "jws", Credential: authv1.Credential{Code: "123456"},
	})
	require.NoError(t, err)
	assert.True(t, done.Success)
	assert.Equal(t, "0xtx0001", done.LedgerTx)
	assert.Equal(t, "123456", methods.complete.Credential.Code)
	assert.Equal(t, "198.51.100.4", methods.complete.IP)
}

func TestAuthService_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		msg  string
	}{
		{autherr.Validation("invalid did"), codes.InvalidArgument, "invalid did"},
		{autherr.NotFound("method not found"), codes.NotFound, "method not found"},
		{autherr.Conflict("an active method of this type already exists"), codes.AlreadyExists, "an active method of this type already exists"},
		{autherr.Unauthorized("invalid proof of control"), codes.Unauthenticated, "invalid proof of control"},
		{autherr.RateLimited(), codes.ResourceExhausted, autherr.PublicMessage(autherr.RateLimited())},
		{autherr.Upstream("ledger unavailable", errors.New("dial tcp 10.0.0.8:443")), codes.Unavailable, "ledger unavailable"},
		{autherr.Internal("method lookup failed", errors.New("pq: secret detail")), codes.Internal, "method lookup failed"},
		{errors.New("raw"), codes.Internal, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			srv := NewServer(&fakeMethods{err: tt.err}, nil)
			_, err := srv.RevokeMethod(context.Background(), &authv1.RevokeMethodRequest{DID: testDID, MethodID: "m-1"})
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, st.Code())
			assert.Equal(t, tt.msg, st.Message())
		})
	}
}

func TestAuthService_ListMethods(t *testing.T) {
	activated := time.Unix(1_800_000_000, 0).UTC()
	methods := &fakeMethods{listed: []*domain.AuthMethod{{
		ID: "m-1", DID: testDID, Type: domain.MethodTypeTOTP, Status: domain.StatusActive, IsPrimary: true,
		EncryptedSecret: "sealed", LedgerTxRef: "0xtx0001", CreatedAt: activated, ActivatedAt: &activated,
	}}}
	client := dial(t, NewServer(methods, nil))

	resp, err := client.ListMethods(context.Background(), &authv1.ListMethodsRequest{DID: testDID, ProofOfControl: "jws"})
	require.NoError(t, err)
	require.Len(t, resp.Methods, 1)
	got := resp.Methods[0]
	assert.Equal(t, "active", got.Status)
	assert.True(t, got.IsPrimary)
	assert.Equal(t, "0xtx0001", got.LedgerTx)
	require.NotNil(t, got.ActivatedAt)
	assert.True(t, activated.Equal(*got.ActivatedAt))
}

func TestAuthService_SessionTokenFromBearer(t *testing.T) {
	sessions := &fakeSessions{valid: true}
	client := dial(t, NewServer(nil, sessions))
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer header.tok")

	resp, err := client.ValidateSession(ctx, &authv1.ValidateSessionRequest{})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, testDID, resp.DID)
	assert.Equal(t, "header.tok", sessions.validate.Token)

	_, err = client.ValidateSession(ctx, &authv1.ValidateSessionRequest{SessionToken: "body.tok", Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, "body.tok", sessions.validate.Token)
	assert.True(t, sessions.validate.Refresh)
}

func TestAuthService_InvalidSessionIsNotAnError(t *testing.T) {
	client := dial(t, NewServer(nil, &fakeSessions{valid: false}))

	resp, err := client.ValidateSession(context.Background(), &authv1.ValidateSessionRequest{SessionToken: "x.y"})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Empty(t, resp.DID)
	assert.Nil(t, resp.ExpiresAt)
}

func TestAuthService_CreateAndRevokeSession(t *testing.T) {
	sessions := &fakeSessions{}
	client := dial(t, NewServer(nil, sessions))

	created, err := client.CreateSession(context.Background(), &authv1.CreateSessionRequest{
		DID: testDID, MethodType: "totp", Credential: authv1.Credential{RecoveryCode: "abcd-efgh"},
		DeviceFingerprint: "fp-1", RememberDevice: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "payload.sig", created.SessionToken)
	assert.Equal(t, []string{"methods:read", "session:validate"}, created.Permissions)
	assert.Equal(t, "abcd-efgh", sessions.create.Credential.RecoveryCode)
	assert.True(t, sessions.create.RememberDevice)

	revoked, err := client.RevokeSession(context.Background(), &authv1.RevokeSessionRequest{SessionToken: "payload.sig", RevokeAll: true})
	require.NoError(t, err)
	assert.Equal(t, 1, revoked.RevokedSessions)
	assert.True(t, sessions.revoke.RevokeAll)
}

func TestAuthService_UnimplementedWithoutServices(t *testing.T) {
	srv := NewServer(nil, nil)
	_, err := srv.BeginSetup(context.Background(), &authv1.BeginSetupRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
	_, err = srv.CreateSession(context.Background(), &authv1.CreateSessionRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
