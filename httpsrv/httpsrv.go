// A simple HTTP server and the basic-authentication check for it.

package httpsrv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	. "jobstats/common"
	"jobstats/auth"
)

const (
	serverShutdownTimeoutSec = 10
)

type Server struct {
	verbose bool
	port    int
	failed  func(error)
	stop    chan bool
	server  *http.Server
}

// Create a server that will be listening on `port` and serving `handler`.  It will call `failed`
// if the server returns a failure code.  The server is not started by this.

func New(verbose bool, port int, handler http.Handler, failed func(error)) *Server {
	return &Server{
		verbose: verbose,
		port:    port,
		failed:  failed,
		stop:    make(chan bool, 1),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start the server.  This blocks the current goroutine until the server exits, so typical usage
// would be `go s.Start()`.  To force the server to shut down, call s.Stop().

func (s *Server) Start() {
	if s.verbose {
		Log.Infof("Listening on port %d", s.port)
	}
	err := s.server.ListenAndServe()
	if err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			Log.Error(err.Error())
			Log.Error("SERVER NOT RUNNING")
			if s.failed != nil {
				s.failed(err)
			}
		} else if s.verbose {
			Log.Info(err.Error())
		}
	}
	s.stop <- true
}

// Cause the server to shut down and wait for Start to return.

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeoutSec*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		Log.Warning(err.Error())
	}
	<-s.stop
}

// Given a (possibly nil) authenticator and a request, apply HTTP basic authentication for the
// given realm.  If the authentication fails then signal a 401 response and log it.  With a nil
// authenticator only requests without credentials pass.
//
// The realm name should not contain a `"` character.

func Authenticate(w http.ResponseWriter, r *http.Request, authenticator *auth.Authenticator, realm string) bool {
	user, pass, ok := r.BasicAuth()
	passed := !ok && authenticator == nil || ok && authenticator != nil && authenticator.Authenticate(user, pass)
	if !passed {
		if authenticator != nil {
			w.Header().Add("WWW-Authenticate", "Basic realm=\""+realm+"\", charset=\"utf-8\"")
		}
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintf(w, "Unauthorized")
		Log.Warningf("Authorization failed for %s", r.URL.Path)
		return false
	}
	return true
}

// RequireAuth wraps handler so that every request is authenticated first.  Paths in `open` are
// served without authentication.

func RequireAuth(handler http.Handler, authenticator *auth.Authenticator, realm string, open ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range open {
			if r.URL.Path == p {
				handler.ServeHTTP(w, r)
				return
			}
		}
		if Authenticate(w, r, authenticator, realm) {
			handler.ServeHTTP(w, r)
		}
	})
}
