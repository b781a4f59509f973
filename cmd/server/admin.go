package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"go-fileserver/server"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

type AdminClaims struct {
	jwt.RegisteredClaims
}

// authenticateAdmin checks an HS256 bearer token when secret is set. The
// token may also come in the access_token query parameter, since browser
// websocket clients cannot set headers. With no secret every caller is let
// through as "anonymous".
func authenticateAdmin(r *http.Request, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "anonymous", nil
	}

	tokenStr := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tokenStr = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	} else {
		tokenStr = r.URL.Query().Get("access_token")
	}
	if tokenStr == "" {
		return "", errors.New("missing token")
	}

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}

	return claims.Subject, nil
}

// requireAdmin wraps next with authenticateAdmin.
func requireAdmin(secret []byte, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateAdmin(r, secret); err != nil {
			log.Printf("[admin] %s %s rejected: %v", r.Method, r.URL.Path, err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// methodFilter reads ?method=GET,UPLOAD; no parameter means every method.
func methodFilter(r *http.Request) []server.Method {
	raw := r.URL.Query().Get("method")
	if raw == "" {
		return nil
	}

	var methods []server.Method
	for _, name := range strings.Split(raw, ",") {
		var m server.Method
		_ = m.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(name))))
		methods = append(methods, m)
	}
	return methods
}

// newAdminMux builds the operational HTTP surface: health, metrics, and a
// websocket feed of audit entries.
func newAdminMux(srv *server.Server, secret []byte) *http.ServeMux {
	mux := http.NewServeMux()

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/__fileserver/health", requireAdmin(secret, func(w http.ResponseWriter, r *http.Request) {
		summary := srv.Health()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			http.Error(w, "failed to encode health summary", http.StatusInternalServerError)
		}
	}))

	mux.HandleFunc("/__fileserver/metrics", requireAdmin(secret, func(w http.ResponseWriter, r *http.Request) {
		snap := srv.Metrics().Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, "failed to encode metrics", http.StatusInternalServerError)
		}
	}))

	mux.HandleFunc("/__fileserver/events", requireAdmin(secret, func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[admin] ws upgrade error: %v", err)
			return
		}
		defer conn.Close()

		hub := srv.Events()
		sub := hub.Subscribe(methodFilter(r)...)
		defer hub.Unsubscribe(sub)

		// writer goroutine
		go func() {
			for ev := range sub.Send {
				if err := conn.WriteJSON(ev); err != nil {
					log.Printf("[admin] ws write error: %v", err)
					return
				}
			}
		}()

		// The feed is one-way; reading only notices when the peer goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
					websocket.CloseAbnormalClosure,
				) {
					log.Printf("[admin] ws read error: %v", err)
				}
				return
			}
		}
	}))

	return mux
}
