package handler

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	authv1 "didlink/api/auth/v1"
	"didlink/internal/autherr"
	"didlink/internal/credential"
	"didlink/internal/did"
	"didlink/internal/method/domain"
	methodservice "didlink/internal/method/service"
	"didlink/internal/oauthstate"
	"didlink/internal/server/interceptors"
	sessionservice "didlink/internal/session/service"
)

// DeviceCookie holds the remembered-device token between browser logins. It is scoped to /oauth/
// and never readable by scripts.
const DeviceCookie = "didlink_device"

// StatePeeker checks an OAuth state without consuming it.
type StatePeeker interface {
	Peek(token string) (*oauthstate.State, error)
}

// Providers resolves configured OAuth providers. *credential.Registry satisfies it.
type Providers interface {
	OAuth(provider string) (*credential.OAuthStrategy, error)
}

// HTTPDeps wires the HTTP surface.
type HTTPDeps struct {
	Methods   Methods
	Sessions  Sessions
	States    StatePeeker
	Providers Providers
	// Livez and Readyz serve /healthz and /readyz. Nil handlers are not routed.
	Livez  http.HandlerFunc
	Readyz http.HandlerFunc
}

type httpHandler struct {
	deps HTTPDeps
}

// NewRouter returns the HTTP routes: the OAuth login start, the provider callback for both link and
// login states, and the health probes.
func NewRouter(deps HTTPDeps) *mux.Router {
	h := &httpHandler{deps: deps}
	r := mux.NewRouter()
	r.HandleFunc("/oauth/{provider}/start", h.start).Methods(http.MethodGet)
	r.HandleFunc("/oauth/{provider}/callback", h.callback).Methods(http.MethodGet)
	if deps.Livez != nil {
		r.HandleFunc("/healthz", deps.Livez).Methods(http.MethodGet)
	}
	if deps.Readyz != nil {
		r.HandleFunc("/readyz", deps.Readyz).Methods(http.MethodGet)
	}
	return r
}

// start issues a session state for ?did= and redirects the browser to the provider.
func (h *httpHandler) start(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	q := r.URL.Query()
	didValue := q.Get("did")
	if err := did.Validate(didValue); err != nil {
		writeError(w, "start", err)
		return
	}
	remember, _ := strconv.ParseBool(q.Get("remember_device"))
	fingerprint := q.Get("device_fingerprint")
	if remember && fingerprint == "" {
		writeError(w, "start", autherr.Validation("device_fingerprint is required to remember a device"))
		return
	}
	strategy, err := h.deps.Providers.OAuth(provider)
	if err != nil {
		writeError(w, "start", err)
		return
	}
	url, _, err := strategy.Begin(r.Context(), oauthstate.State{
		DID:         didValue,
		Purpose:     oauthstate.PurposeSession,
		Fingerprint: fingerprint,
		Remember:    remember,
	})
	if err != nil {
		writeError(w, "start", err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// callback finishes the redirect. The state is peeked first so a stale or forged state is rejected
// before the authorization code is exchanged.
func (h *httpHandler) callback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	q := r.URL.Query()
	stateToken := q.Get("state")
	st, err := h.deps.States.Peek(stateToken)
	if err != nil {
		writeError(w, "callback", err)
		return
	}
	if st.Provider != provider {
		writeError(w, "callback", autherr.Unauthorized("invalid or expired state"))
		return
	}
	if q.Get("error") != "" {
		writeError(w, "callback", autherr.Unauthorized("authorization denied by provider"))
		return
	}
	cred := credential.Credential{AuthCode: q.Get("code"), State: stateToken}
	ctx := withHTTPClientIP(r)

	switch st.Purpose {
	case oauthstate.PurposeLink:
		res, err := h.deps.Methods.CompleteSetup(ctx, methodservice.CompleteInput{
			DID:        st.DID,
			MethodID:   st.MethodID,
			Credential: cred,
			IP:         interceptors.ClientIPFromContext(ctx),
		})
		if err != nil {
			writeError(w, "callback", err)
			return
		}
		writeJSON(w, http.StatusOK, &authv1.CompleteSetupResponse{
			Success:    true,
			MethodID:   res.MethodID,
			MethodType: string(res.MethodType),
			LedgerTx:   res.LedgerTx,
			IsPrimary:  res.IsPrimary,
		})
	case oauthstate.PurposeSession:
		res, err := h.deps.Sessions.Create(ctx, sessionservice.CreateInput{
			DID:               st.DID,
			MethodType:        domain.OAuthMethodType(provider),
			Credential:        cred,
			DeviceFingerprint: st.Fingerprint,
			DeviceToken:       deviceToken(r),
			RememberDevice:    st.Remember,
			IP:                interceptors.ClientIPFromContext(ctx),
		})
		if err != nil {
			writeError(w, "callback", err)
			return
		}
		if res.DeviceToken != "" && res.DeviceExpiresAt != nil {
			http.SetCookie(w, &http.Cookie{
				Name:     DeviceCookie,
				Value:    res.DeviceToken,
				Path:     "/oauth/",
				Expires:  *res.DeviceExpiresAt,
				HttpOnly: true,
				Secure:   true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		writeJSON(w, http.StatusOK, createResponse(res))
	default:
		writeError(w, "callback", autherr.Unauthorized("invalid or expired state"))
	}
}

func deviceToken(r *http.Request) string {
	c, err := r.Cookie(DeviceCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// withHTTPClientIP stores the caller IP (first X-Forwarded-For hop, X-Real-IP or the remote address).
func withHTTPClientIP(r *http.Request) context.Context {
	var ip string
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	} else if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		ip = xr
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}
	requestID := r.Header.Get("X-Request-ID")
	return interceptors.WithRequest(r.Context(), requestID, ip)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, route string, err error) {
	switch autherr.KindOf(err) {
	case autherr.KindInternal, autherr.KindUpstream:
		log.Printf("auth: http %s failed: %v", route, err)
	}
	writeJSON(w, autherr.HTTPStatus(err), errorBody{Error: autherr.PublicMessage(err), Kind: autherr.KindOf(err).String()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("auth: write response: %v", err)
	}
}
