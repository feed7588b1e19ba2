// Package handler exposes the method registry and session service over gRPC (AuthService) and over
// HTTP for the OAuth redirect round trip.
package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "didlink/api/auth/v1"
	"didlink/internal/autherr"
	"didlink/internal/credential"
	"didlink/internal/method/domain"
	methodservice "didlink/internal/method/service"
	"didlink/internal/server/interceptors"
	sessionservice "didlink/internal/session/service"
)

// Methods is the method registry surface used by the handlers.
type Methods interface {
	BeginSetup(ctx context.Context, in methodservice.BeginInput) (*methodservice.BeginResult, error)
	CompleteSetup(ctx context.Context, in methodservice.CompleteInput) (*methodservice.CompleteResult, error)
	Revoke(ctx context.Context, in methodservice.RevokeInput) (*methodservice.RevokeResult, error)
	List(ctx context.Context, did, proof string) ([]*domain.AuthMethod, error)
}

// Sessions is the session service surface used by the handlers.
type Sessions interface {
	Create(ctx context.Context, in sessionservice.CreateInput) (*sessionservice.CreateResult, error)
	Validate(ctx context.Context, in sessionservice.ValidateInput) (*sessionservice.ValidateResult, error)
	Revoke(ctx context.Context, in sessionservice.RevokeInput) (*sessionservice.RevokeResult, error)
}

// Server implements authv1.AuthServiceServer.
type Server struct {
	authv1.UnimplementedAuthServiceServer
	methods  Methods
	sessions Sessions
}

// NewServer returns a new AuthService gRPC server. If methods or sessions is nil, their RPCs return Unimplemented.
func NewServer(methods Methods, sessions Sessions) *Server {
	return &Server{methods: methods, sessions: sessions}
}

// BeginSetup starts linking a TOTP or OAuth method to a DID.
func (s *Server) BeginSetup(ctx context.Context, req *authv1.BeginSetupRequest) (*authv1.BeginSetupResponse, error) {
	if s.methods == nil {
		return nil, status.Error(codes.Unimplemented, "method BeginSetup not implemented")
	}
	res, err := s.methods.BeginSetup(ctx, methodservice.BeginInput{
		DID:        req.DID,
		MethodType: domain.MethodType(req.MethodType),
		Proof:      req.ProofOfControl,
	})
	if err != nil {
		return nil, grpcError("BeginSetup", err)
	}
	resp := &authv1.BeginSetupResponse{
		MethodID:             res.MethodID,
		MethodType:           string(res.MethodType),
		BackupCodes:          res.BackupCodes,
		AuthorizationURL:     res.AuthorizationURL,
		State:                res.State,
		VerificationRequired: res.VerificationRequired,
	}
	if res.TOTP != nil {
		resp.Secret = res.TOTP.Secret
		resp.OtpauthURL = res.TOTP.URL
		resp.QRCode = res.TOTP.QRCode
	}
	return resp, nil
}

// CompleteSetup verifies the first credential of a pending method and anchors it on the ledger.
func (s *Server) CompleteSetup(ctx context.Context, req *authv1.CompleteSetupRequest) (*authv1.CompleteSetupResponse, error) {
	if s.methods == nil {
		return nil, status.Error(codes.Unimplemented, "method CompleteSetup not implemented")
	}
	res, err := s.methods.CompleteSetup(ctx, methodservice.CompleteInput{
		DID:        req.DID,
		MethodID:   req.MethodID,
		Proof:      req.ProofOfControl,
		Credential: toCredential(req.Credential),
		IP:         interceptors.ClientIPFromContext(ctx),
	})
	if err != nil {
		return nil, grpcError("CompleteSetup", err)
	}
	return &authv1.CompleteSetupResponse{
		Success:    true,
		MethodID:   res.MethodID,
		MethodType: string(res.MethodType),
		LedgerTx:   res.LedgerTx,
		IsPrimary:  res.IsPrimary,
	}, nil
}

// RevokeMethod revokes one of the caller's methods.
func (s *Server) RevokeMethod(ctx context.Context, req *authv1.RevokeMethodRequest) (*authv1.RevokeMethodResponse, error) {
	if s.methods == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeMethod not implemented")
	}
	res, err := s.methods.Revoke(ctx, methodservice.RevokeInput{DID: req.DID, MethodID: req.MethodID, Proof: req.ProofOfControl})
	if err != nil {
		return nil, grpcError("RevokeMethod", err)
	}
	return &authv1.RevokeMethodResponse{MethodID: res.MethodID, Revoked: res.Revoked}, nil
}

// ListMethods returns the caller's pending and active methods. Secrets never leave the service.
func (s *Server) ListMethods(ctx context.Context, req *authv1.ListMethodsRequest) (*authv1.ListMethodsResponse, error) {
	if s.methods == nil {
		return nil, status.Error(codes.Unimplemented, "method ListMethods not implemented")
	}
	list, err := s.methods.List(ctx, req.DID, req.ProofOfControl)
	if err != nil {
		return nil, grpcError("ListMethods", err)
	}
	out := make([]authv1.AuthMethod, len(list))
	for i, m := range list {
		out[i] = authv1.AuthMethod{
			MethodID:    m.ID,
			MethodType:  string(m.Type),
			Status:      string(m.Status),
			IsPrimary:   m.IsPrimary,
			LedgerTx:    m.LedgerTxRef,
			CreatedAt:   m.CreatedAt,
			ActivatedAt: m.ActivatedAt,
			LastUsedAt:  m.LastUsedAt,
		}
	}
	return &authv1.ListMethodsResponse{Methods: out}, nil
}

// CreateSession logs in with an active method.
func (s *Server) CreateSession(ctx context.Context, req *authv1.CreateSessionRequest) (*authv1.CreateSessionResponse, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method CreateSession not implemented")
	}
	res, err := s.sessions.Create(ctx, sessionservice.CreateInput{
		DID:               req.DID,
		MethodType:        domain.MethodType(req.MethodType),
		Credential:        toCredential(req.Credential),
		Proof:             req.ProofOfControl,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceToken:       req.DeviceToken,
		RememberDevice:    req.RememberDevice,
		IP:                interceptors.ClientIPFromContext(ctx),
	})
	if err != nil {
		return nil, grpcError("CreateSession", err)
	}
	return createResponse(res), nil
}

// ValidateSession checks a session token, from the body or the authorization header.
func (s *Server) ValidateSession(ctx context.Context, req *authv1.ValidateSessionRequest) (*authv1.ValidateSessionResponse, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method ValidateSession not implemented")
	}
	res, err := s.sessions.Validate(ctx, sessionservice.ValidateInput{
		Token:   sessionToken(ctx, req.SessionToken),
		Refresh: req.Refresh,
	})
	if err != nil {
		return nil, grpcError("ValidateSession", err)
	}
	if !res.Valid {
		return &authv1.ValidateSessionResponse{Valid: false}, nil
	}
	exp := res.ExpiresAt
	return &authv1.ValidateSessionResponse{
		Valid:       true,
		DID:         res.DID,
		MethodID:    res.MethodID,
		ExpiresAt:   &exp,
		NewToken:    res.NewToken,
		Permissions: res.Permissions,
	}, nil
}

// RevokeSession logs out one session, all of a DID's sessions, or a remembered device.
func (s *Server) RevokeSession(ctx context.Context, req *authv1.RevokeSessionRequest) (*authv1.RevokeSessionResponse, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeSession not implemented")
	}
	res, err := s.sessions.Revoke(ctx, sessionservice.RevokeInput{
		Token:       sessionToken(ctx, req.SessionToken),
		RevokeAll:   req.RevokeAll,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		return nil, grpcError("RevokeSession", err)
	}
	return &authv1.RevokeSessionResponse{RevokedSessions: res.Sessions, RevokedDevices: res.Devices}, nil
}

func sessionToken(ctx context.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return interceptors.GetBearer(ctx)
}

func toCredential(c authv1.Credential) credential.Credential {
	return credential.Credential{Code: c.Code, RecoveryCode: c.RecoveryCode, AuthCode: c.AuthCode, State: c.State}
}

func createResponse(res *sessionservice.CreateResult) *authv1.CreateSessionResponse {
	out := &authv1.CreateSessionResponse{
		SessionToken: res.Token,
		ExpiresAt:    res.ExpiresAt,
		MethodID:     res.MethodID,
		Permissions:  res.Permissions,
		DeviceToken:  res.DeviceToken,
	}
	if res.DeviceExpiresAt != nil {
		t := res.DeviceExpiresAt.UTC().Truncate(time.Second)
		out.DeviceExpiresAt = &t
	}
	return out
}

// grpcError maps err to a status with the public message. Causes of internal and upstream
// failures are logged here and never sent to the client.
func grpcError(rpc string, err error) error {
	switch autherr.KindOf(err) {
	case autherr.KindInternal, autherr.KindUpstream:
		log.Printf("auth: %s failed: %v", rpc, err)
	}
	return status.Error(autherr.GRPCCode(err), autherr.PublicMessage(err))
}
